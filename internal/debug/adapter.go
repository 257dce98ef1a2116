package debug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"

	"github.com/dshills/luadap/internal/debug/runtime"
	"github.com/dshills/luadap/internal/logging"
)

// ThreadID is the only thread the engine exposes.
const ThreadID = 1

// DefaultStackLevels is used when a stackTrace request does not limit levels.
const DefaultStackLevels = 1000

// Error ids carried in error responses.
const (
	errIDUnsupported = 1000 + iota
	errIDLaunch
	errIDStackConflict
	errIDNotConnected
	errIDTerminated
	errIDInvalidArgs
)

// RuntimeTransport is the connection to the engine as the adapter uses it.
type RuntimeTransport interface {
	Connect(ctx context.Context) error
	Send(cmd runtime.Command) error
	Close() error
	Connected() bool
}

// Emitter delivers responses and events to the front end.
type Emitter interface {
	Emit(msg dap.Message)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(msg dap.Message)

// Emit implements Emitter.
func (f EmitterFunc) Emit(msg dap.Message) { f(msg) }

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Transport  RuntimeTransport
	Emitter    Emitter
	Logger     *logging.Logger
	Paths      *PathMapper
	Inspector  VariableInspector
	Correlator StackCorrelator
}

// Adapter translates between front-end requests and the runtime. It is not
// safe for concurrent use: every method must be called from the session loop.
type Adapter struct {
	log        *logging.Logger
	transport  RuntimeTransport
	emitter    Emitter
	session    *Session
	registry   *Registry
	correlator StackCorrelator
	handles    *Handles
	inspector  VariableInspector
	paths      *PathMapper
	lines      LineConverter

	seq          int
	disconnected bool

	// entryReported is set when launch reported stopped(entry) itself; the
	// runtime's own entry notice is then dropped whenever it arrives.
	entryReported bool
}

// NewAdapter creates an adapter with a fresh session.
func NewAdapter(opts AdapterOptions) *Adapter {
	log := opts.Logger
	if log == nil {
		log = logging.Null()
	}

	session := NewSession()
	handles := NewHandles()

	a := &Adapter{
		transport:  opts.Transport,
		emitter:    opts.Emitter,
		session:    session,
		registry:   NewRegistry(),
		correlator: opts.Correlator,
		handles:    handles,
		inspector:  opts.Inspector,
		paths:      opts.Paths,
		lines:      DefaultLineConverter(),
	}
	// The session owns its level so a traced launch stays local to it.
	a.log = log.Fork().WithComponent("adapter").With("session", session.ID())

	if a.correlator == nil {
		a.correlator = NewSingleSlotCorrelator()
	}
	if a.inspector == nil {
		a.inspector = NewCannedInspector(handles)
	}
	if a.emitter == nil {
		a.emitter = EmitterFunc(func(dap.Message) {})
	}

	session.OnTransition(func(old, new SessionState) {
		a.log.Debug("session %s -> %s", old, new)
	})
	return a
}

// Session returns the adapter's session.
func (a *Adapter) Session() *Session { return a.session }

// Logger returns the session logger. A launch with trace set raises its
// level to debug.
func (a *Adapter) Logger() *logging.Logger { return a.log }

// Registry returns the breakpoint registry.
func (a *Adapter) Registry() *Registry { return a.registry }

// Disconnected reports whether the front end asked to end the connection.
func (a *Adapter) Disconnected() bool { return a.disconnected }

// requestMessage is implemented by every go-dap request type.
type requestMessage interface {
	dap.Message
	GetRequest() *dap.Request
}

// HandleRequest processes one front-end message.
func (a *Adapter) HandleRequest(ctx context.Context, msg dap.Message) {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		a.onInitialize(req)
	case *dap.LaunchRequest:
		a.onLaunch(ctx, req)
	case *dap.ConfigurationDoneRequest:
		a.emit(&dap.ConfigurationDoneResponse{Response: a.response(&req.Request)})
	case *dap.SetBreakpointsRequest:
		a.onSetBreakpoints(req)
	case *dap.ThreadsRequest:
		a.onThreads(req)
	case *dap.StackTraceRequest:
		a.onStackTrace(req)
	case *dap.ScopesRequest:
		a.onScopes(req)
	case *dap.VariablesRequest:
		a.onVariables(req)
	case *dap.EvaluateRequest:
		a.onEvaluate(req)
	case *dap.ContinueRequest:
		a.resume("continue", runtime.Continue{})
		a.emit(&dap.ContinueResponse{
			Response: a.response(&req.Request),
			Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
		})
	case *dap.ReverseContinueRequest:
		a.resume("reverseContinue", runtime.ReverseContinue{})
		a.emit(&dap.ReverseContinueResponse{Response: a.response(&req.Request)})
	case *dap.NextRequest:
		a.resume("next", runtime.Step{})
		a.emit(&dap.NextResponse{Response: a.response(&req.Request)})
	case *dap.StepBackRequest:
		a.resume("stepBack", runtime.StepBack{})
		a.emit(&dap.StepBackResponse{Response: a.response(&req.Request)})
	case *dap.DisconnectRequest:
		a.terminate("disconnect")
		a.disconnected = true
		a.emit(&dap.DisconnectResponse{Response: a.response(&req.Request)})
	case *dap.TerminateRequest:
		a.terminate("terminate")
		a.emit(&dap.TerminateResponse{Response: a.response(&req.Request)})
	case requestMessage:
		r := req.GetRequest()
		a.log.Warn("unsupported command %q", r.Command)
		a.emitError(r, errIDUnsupported, "unsupported command")
	default:
		a.log.Debug("ignoring %T from front end", msg)
	}
}

// HandleUnsupported answers a request that could not be decoded.
func (a *Adapter) HandleUnsupported(seq int, command string) {
	a.log.Warn("unsupported command %q", command)
	a.emitError(&dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}, errIDUnsupported, "unsupported command")
}

// HandleRuntimeMessage processes one decoded runtime record.
func (a *Adapter) HandleRuntimeMessage(msg runtime.Message) {
	switch m := msg.(type) {
	case runtime.StackInfo:
		a.onStackInfo(m)
	case runtime.StopNotice:
		a.onStopped(StopReason(m.Reason))
	case runtime.OutputNotice:
		a.onOutput(m)
	case runtime.EndNotice:
		a.log.Info("runtime reported end of script")
		a.terminate("end")
	default:
		a.log.Warn("ignoring runtime message %T", msg)
	}
}

// HandleRuntimeClosed processes the loss of the runtime connection.
func (a *Adapter) HandleRuntimeClosed(err error) {
	if a.session.Terminated() {
		return
	}
	a.log.Warn("runtime connection closed: %v", err)
	a.terminate("runtime closed")
}

// Shutdown ends the session without a front-end request, e.g. on ctx
// cancellation.
func (a *Adapter) Shutdown() {
	a.terminate("shutdown")
}

func (a *Adapter) onInitialize(req *dap.InitializeRequest) {
	err := a.session.Initialize()
	if err != nil {
		a.log.Warn("%v", err)
	} else {
		a.lines = LineConverter{
			LinesStartAt1:   req.Arguments.LinesStartAt1,
			ColumnsStartAt1: req.Arguments.ColumnsStartAt1,
		}
		a.log.Info("initialize from %q (adapter %q)", req.Arguments.ClientName, req.Arguments.AdapterID)
	}

	a.emit(&dap.InitializeResponse{
		Response: a.response(&req.Request),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsEvaluateForHovers:        true,
			SupportsStepBack:                 false,
		},
	})

	if err == nil {
		a.emit(&dap.InitializedEvent{Event: a.event("initialized")})
	}
}

type launchArguments struct {
	Program     string
	StopOnEntry bool
	Trace       bool
}

func parseLaunchArguments(raw []byte) launchArguments {
	args := gjson.ParseBytes(raw)
	return launchArguments{
		Program:     args.Get("program").String(),
		StopOnEntry: args.Get("stopOnEntry").Bool(),
		Trace:       args.Get("trace").Bool(),
	}
}

func (a *Adapter) onLaunch(ctx context.Context, req *dap.LaunchRequest) {
	if err := a.session.CheckLaunch(); err != nil {
		a.log.Warn("%v", err)
		a.emit(&dap.LaunchResponse{Response: a.response(&req.Request)})
		return
	}

	args := parseLaunchArguments(req.Arguments)
	if args.Program == "" {
		a.emitError(&req.Request, errIDInvalidArgs, "launch requires a program")
		return
	}
	if args.Trace {
		a.log.SetLevel(logging.LevelDebug)
	}

	if err := a.transport.Connect(ctx); err != nil {
		a.log.Error("launch %s: %v", args.Program, err)
		a.emitError(&req.Request, errIDLaunch, fmt.Sprintf("cannot connect to runtime: %v", err))
		a.terminate("connect failed")
		return
	}

	if err := a.session.Launched(args.Program, args.StopOnEntry); err != nil {
		a.log.Warn("%v", err)
		a.emit(&dap.LaunchResponse{Response: a.response(&req.Request)})
		return
	}

	// Breakpoints go first so the runtime knows them before the script runs.
	for _, path := range a.registry.Paths() {
		if !a.syncBreakpoints(path) {
			a.emitError(&req.Request, errIDLaunch, "cannot start program")
			return
		}
	}

	a.log.Info("launching %s (stopOnEntry=%t)", args.Program, args.StopOnEntry)
	start := runtime.Start{Program: a.paths.ToRuntime(args.Program), StopOnEntry: args.StopOnEntry}
	if !a.send(start) {
		a.emitError(&req.Request, errIDLaunch, "cannot start program")
		return
	}

	stopped, err := a.session.Start()
	if err != nil {
		a.log.Warn("%v", err)
	}

	a.emit(&dap.LaunchResponse{Response: a.response(&req.Request)})

	if stopped {
		a.entryReported = true
		a.emitStopped(StopReasonEntry)
	}
}

func (a *Adapter) onSetBreakpoints(req *dap.SetBreakpointsRequest) {
	path := req.Arguments.Source.Path

	var clientLines []int
	if len(req.Arguments.Breakpoints) > 0 {
		clientLines = make([]int, len(req.Arguments.Breakpoints))
		for i, bp := range req.Arguments.Breakpoints {
			clientLines[i] = bp.Line
		}
	} else {
		clientLines = req.Arguments.Lines
	}

	lines := make([]int, len(clientLines))
	for i, line := range clientLines {
		lines[i] = a.lines.ToInternalLine(line)
	}

	if !a.paths.MatchesSource(path) {
		a.log.Debug("breakpoints set in %s, which is outside the source patterns", path)
	}

	bps := a.registry.SetBreakpoints(path, lines)
	out := make([]dap.Breakpoint, len(bps))
	for i, bp := range bps {
		out[i] = a.toDAPBreakpoint(bp)
	}

	a.emit(&dap.SetBreakpointsResponse{
		Response: a.response(&req.Request),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: out},
	})

	if a.runtimeReady() {
		a.syncBreakpoints(path)
	}
}

func (a *Adapter) onThreads(req *dap.ThreadsRequest) {
	a.emit(&dap.ThreadsResponse{
		Response: a.response(&req.Request),
		Body: dap.ThreadsResponseBody{
			Threads: []dap.Thread{{Id: ThreadID, Name: "thread 1"}},
		},
	})
}

func (a *Adapter) onStackTrace(req *dap.StackTraceRequest) {
	if !a.runtimeReady() {
		a.emitError(&req.Request, errIDNotConnected, ErrNotConnected.Error())
		return
	}

	if err := a.correlator.BeginStackRequest(req); err != nil {
		a.log.Warn("stackTrace seq %d: %v", req.Seq, err)
		a.emitError(&req.Request, errIDStackConflict, err.Error())
		return
	}

	start := req.Arguments.StartFrame
	levels := req.Arguments.Levels
	if levels <= 0 {
		levels = DefaultStackLevels
	}

	if !a.send(runtime.StackQuery{Start: start, End: start + levels}) {
		if _, held := a.correlator.Reset(); held {
			a.emitError(&req.Request, errIDNotConnected, "stack query not sent")
		}
	}
}

func (a *Adapter) onStackInfo(msg runtime.StackInfo) {
	token, result, ok := a.correlator.ResolveStackInfo(msg)
	if !ok {
		a.log.Debug("dropping unsolicited stack info (%d levels)", msg.NumLevels)
		return
	}

	req, ok := token.(*dap.StackTraceRequest)
	if !ok {
		a.log.Error("unexpected stack request token %T", token)
		return
	}

	frames := make([]dap.StackFrame, len(result.Frames))
	for i, f := range result.Frames {
		frame := dap.StackFrame{Id: f.Index, Name: f.Name}
		if f.HasSource() {
			frame.Source = &dap.Source{
				Name: sourceName(f.SourceFile),
				Path: a.paths.ToClient(f.SourceFile),
			}
			frame.Line = a.lines.ToClientLine(f.Line)
			frame.Column = a.lines.ToClientColumn(0)
		}
		frames[i] = frame
	}

	a.emit(&dap.StackTraceResponse{
		Response: a.response(&req.Request),
		Body: dap.StackTraceResponseBody{
			StackFrames: frames,
			TotalFrames: result.TotalFrames,
		},
	})
}

func (a *Adapter) onScopes(req *dap.ScopesRequest) {
	frameID := strconv.Itoa(req.Arguments.FrameId)
	a.emit(&dap.ScopesResponse{
		Response: a.response(&req.Request),
		Body: dap.ScopesResponseBody{
			Scopes: []dap.Scope{
				{Name: "Local", VariablesReference: a.handles.Create("local_" + frameID), Expensive: false},
				{Name: "Global", VariablesReference: a.handles.Create("global_" + frameID), Expensive: true},
			},
		},
	})
}

func (a *Adapter) onVariables(req *dap.VariablesRequest) {
	vars := []dap.Variable{}
	if ref, ok := a.handles.Get(req.Arguments.VariablesReference); ok {
		for _, v := range a.inspector.Variables(ref) {
			vars = append(vars, dap.Variable{
				Name:               v.Name,
				Value:              v.Value,
				Type:               v.Type,
				VariablesReference: v.VariablesReference,
			})
		}
	} else {
		a.log.Debug("unknown variables reference %d", req.Arguments.VariablesReference)
	}

	a.emit(&dap.VariablesResponse{
		Response: a.response(&req.Request),
		Body:     dap.VariablesResponseBody{Variables: vars},
	})
}

var (
	newBreakpointExpr = regexp.MustCompile(`^new +(\d+)$`)
	delBreakpointExpr = regexp.MustCompile(`^del +(\d+)$`)
)

func (a *Adapter) onEvaluate(req *dap.EvaluateRequest) {
	expr := strings.TrimSpace(req.Arguments.Expression)
	evalContext := req.Arguments.Context

	reply := fmt.Sprintf("evaluate(context: '%s', '%s')", evalContext, req.Arguments.Expression)

	if evalContext == "repl" {
		if m := newBreakpointExpr.FindStringSubmatch(expr); m != nil {
			if r, ok := a.evalNewBreakpoint(m[1]); ok {
				reply = r
			}
		} else if m := delBreakpointExpr.FindStringSubmatch(expr); m != nil {
			if r, ok := a.evalDeleteBreakpoint(m[1]); ok {
				reply = r
			}
		}
	}

	a.emit(&dap.EvaluateResponse{
		Response: a.response(&req.Request),
		Body:     dap.EvaluateResponseBody{Result: reply},
	})
}

func (a *Adapter) evalNewBreakpoint(arg string) (string, bool) {
	path := a.session.SourceFile()
	line, err := strconv.Atoi(arg)
	if err != nil || path == "" {
		return "", false
	}

	bp := a.registry.SetSingle(path, a.lines.ToInternalLine(line))
	a.emitBreakpoint("new", bp)
	if a.runtimeReady() {
		a.syncBreakpoints(path)
	}
	return "breakpoint created", true
}

func (a *Adapter) evalDeleteBreakpoint(arg string) (string, bool) {
	path := a.session.SourceFile()
	line, err := strconv.Atoi(arg)
	if err != nil || path == "" {
		return "", false
	}

	bp, ok := a.registry.ClearSingle(path, a.lines.ToInternalLine(line))
	if !ok {
		return "", false
	}
	a.emitBreakpoint("removed", bp)
	if a.runtimeReady() {
		a.syncBreakpoints(path)
	}
	return "breakpoint deleted", true
}

// resume validates an execution command, forwards it and moves the session
// to Running without waiting for the runtime.
func (a *Adapter) resume(command string, cmd runtime.Command) {
	if err := a.session.Resume(command); err != nil {
		a.log.Warn("%v", err)
		return
	}
	a.handles.Reset()
	a.send(cmd)
}

func (a *Adapter) onStopped(reason StopReason) {
	if reason == StopReasonEntry && a.entryReported {
		a.entryReported = false
		a.log.Debug("runtime confirmed stop on entry")
		return
	}
	if err := a.session.Stop(reason); err != nil {
		a.log.Warn("dropping stop notice: %v", err)
		return
	}
	a.emitStopped(reason)
}

func (a *Adapter) onOutput(msg runtime.OutputNotice) {
	text := msg.Text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	body := dap.OutputEventBody{Category: "stdout", Output: text}
	if msg.File != "" {
		body.Source = &dap.Source{
			Name: sourceName(msg.File),
			Path: a.paths.ToClient(msg.File),
		}
		body.Line = a.lines.ToClientLine(msg.Line)
		body.Column = a.lines.ToClientColumn(msg.Column)
	}

	a.emit(&dap.OutputEvent{Event: a.event("output"), Body: body})
}

// terminate ends the session once: the held stack request is answered with
// an error, the runtime socket is closed and a terminated event is sent.
func (a *Adapter) terminate(reason string) {
	if !a.session.Terminate() {
		return
	}
	a.log.Info("session terminated (%s)", reason)

	if token, ok := a.correlator.Reset(); ok {
		if req, ok := token.(*dap.StackTraceRequest); ok {
			a.emitError(&req.Request, errIDTerminated, ErrSessionTerminated.Error())
		}
	}

	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.log.Debug("closing runtime transport: %v", err)
		}
	}

	a.emit(&dap.TerminatedEvent{Event: a.event("terminated")})
}

func (a *Adapter) runtimeReady() bool {
	return a.transport != nil && a.transport.Connected() && !a.session.Terminated()
}

// send writes cmd to the runtime. A write failure is fatal for the session.
func (a *Adapter) send(cmd runtime.Command) bool {
	err := a.transport.Send(cmd)
	if err == nil {
		return true
	}

	a.log.Error("send %T: %v", cmd, err)
	if runtime.IsConnectionError(err) || errors.Is(err, runtime.ErrClosed) {
		a.terminate("write failed")
	}
	return false
}

func (a *Adapter) syncBreakpoints(path string) bool {
	return a.send(runtime.SetBreakpoints{
		File:  a.paths.ToRuntime(path),
		Lines: a.registry.Lines(path),
	})
}

func (a *Adapter) toDAPBreakpoint(bp Breakpoint) dap.Breakpoint {
	return dap.Breakpoint{
		Id:       bp.ID,
		Verified: bp.Verified,
		Line:     a.lines.ToClientLine(bp.Line),
		Source:   &dap.Source{Name: sourceName(bp.Path), Path: bp.Path},
	}
}

func (a *Adapter) emitStopped(reason StopReason) {
	a.handles.Reset()
	a.emit(&dap.StoppedEvent{
		Event: a.event("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            string(reason),
			ThreadId:          ThreadID,
			AllThreadsStopped: true,
		},
	})
}

func (a *Adapter) emitBreakpoint(reason string, bp Breakpoint) {
	a.emit(&dap.BreakpointEvent{
		Event: a.event("breakpoint"),
		Body: dap.BreakpointEventBody{
			Reason:     reason,
			Breakpoint: a.toDAPBreakpoint(bp),
		},
	})
}

func (a *Adapter) emitError(req *dap.Request, id int, message string) {
	resp := &dap.ErrorResponse{Response: a.response(req)}
	resp.Success = false
	resp.Message = message
	resp.Body.Error = &dap.ErrorMessage{Id: id, Format: message, ShowUser: true}
	a.emit(resp)
}

func (a *Adapter) emit(msg dap.Message) {
	a.emitter.Emit(msg)
}

func (a *Adapter) nextSeq() int {
	a.seq++
	return a.seq
}

func (a *Adapter) response(req *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: a.nextSeq(), Type: "response"},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func (a *Adapter) event(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: a.nextSeq(), Type: "event"},
		Event:           name,
	}
}
