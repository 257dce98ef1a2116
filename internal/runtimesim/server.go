// Package runtimesim is a stand-in for the MyEngine Lua runtime. It speaks
// the engine's debugger wire protocol on a TCP port and runs a Lua script
// statement by statement with gopher-lua, so the bridge can be exercised
// without the engine.
package runtimesim

import (
	"bufio"
	"context"
	"errors"
	"net"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/luadap/internal/debug/runtime"
	"github.com/dshills/luadap/internal/logging"
)

// Server accepts debugger connections and serves them one at a time.
type Server struct {
	// Root resolves relative program paths from Start commands.
	Root string

	log *logging.Logger
	ln  net.Listener

	closeOnce sync.Once
}

// Listen creates a server bound to addr.
func Listen(addr, root string, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.Null()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{Root: root, log: log.WithComponent("runtimesim"), ln: ln}, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.log.Info("debugger connected from %s", conn.RemoteAddr())
		newSession(conn, s.Root, s.log).serve()
		s.log.Info("debugger disconnected")
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ln.Close()
	})
	return err
}

// session is one debugger connection.
type session struct {
	conn net.Conn
	root string
	log  *logging.Logger

	mu sync.Mutex // guards writes

	program     *Program
	runtimePath string
	breakpoints map[string]map[int]bool
	ended       bool
}

func newSession(conn net.Conn, root string, log *logging.Logger) *session {
	return &session{
		conn:        conn,
		root:        root,
		log:         log,
		breakpoints: make(map[string]map[int]bool),
	}
}

func (s *session) serve() {
	defer s.conn.Close()
	defer func() {
		if s.program != nil {
			s.program.Close()
		}
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 4096), runtime.MaxRecordLength)

	for scanner.Scan() {
		record := scanner.Bytes()
		if len(strings.TrimSpace(string(record))) == 0 {
			continue
		}

		cmd, err := runtime.ParseCommand(record)
		if err != nil {
			s.log.Warn("bad command %q: %v", record, err)
			continue
		}
		s.log.Debug("<- %s", record)

		if !s.handle(cmd) {
			return
		}
	}
}

// handle executes one command. It returns false once the session is over.
func (s *session) handle(cmd runtime.Command) bool {
	switch c := cmd.(type) {
	case runtime.Start:
		return s.start(c)
	case runtime.SetBreakpoints:
		lines := make(map[int]bool, len(c.Lines))
		for _, l := range c.Lines {
			lines[l] = true
		}
		s.breakpoints[normalizePath(c.File)] = lines
	case runtime.StackQuery:
		s.stackInfo()
	case runtime.Continue:
		return s.run(false, false)
	case runtime.Step, runtime.StepBack, runtime.ReverseContinue:
		return s.run(true, false)
	case runtime.RawText:
		s.log.Warn("ignoring unknown command %q", c.Text)
	}
	return true
}

func (s *session) start(c runtime.Start) bool {
	if s.program != nil {
		s.log.Warn("program already started")
		return true
	}

	full := c.Program
	if !filepath.IsAbs(full) && s.root != "" {
		full = filepath.Join(s.root, filepath.FromSlash(c.Program))
	}

	program, err := LoadProgram(full)
	if err != nil {
		s.log.Error("start %s: %v", c.Program, err)
		s.send(runtime.OutputNotice{Text: err.Error(), File: c.Program})
		s.send(runtime.EndNotice{})
		return false
	}

	s.program = program
	s.runtimePath = c.Program
	program.OnPrint = func(text string, line int) {
		s.send(runtime.OutputNotice{Text: text, File: s.runtimePath, Line: line})
	}

	if c.StopOnEntry {
		s.send(runtime.StopNotice{Reason: "entry"})
		return true
	}
	return s.run(false, true)
}

// run executes statements until a breakpoint, an error or the end. With step
// set it runs exactly one statement. The statement the program is parked on
// is only checked for a breakpoint when fromStart is set; otherwise resuming
// from a breakpoint would stop on it again.
func (s *session) run(step, fromStart bool) bool {
	if s.program == nil {
		s.log.Warn("resume before start")
		return true
	}

	first := !fromStart
	for !s.program.Done() {
		if !first && !step && s.hasBreakpoint(s.program.Line()) {
			s.send(runtime.StopNotice{Reason: "breakpoint"})
			return true
		}
		first = false

		line := s.program.Line()
		if err := s.program.Step(); err != nil {
			s.send(runtime.OutputNotice{Text: err.Error(), File: s.runtimePath, Line: line})
			s.send(runtime.StopNotice{Reason: "exception"})
			return true
		}

		if step {
			if s.program.Done() {
				break
			}
			s.send(runtime.StopNotice{Reason: "step"})
			return true
		}
	}

	s.ended = true
	s.send(runtime.EndNotice{})
	return false
}

func (s *session) hasBreakpoint(line int) bool {
	want := normalizePath(s.runtimePath)
	for file, lines := range s.breakpoints {
		if !lines[line] {
			continue
		}
		if file == want || path.Base(file) == path.Base(want) {
			return true
		}
	}
	return false
}

func (s *session) stackInfo() {
	if s.program == nil || s.ended || s.program.Done() {
		s.send(runtime.StackInfo{NumLevels: 0})
		return
	}
	s.send(runtime.StackInfo{
		NumLevels:  1,
		SourceFile: s.runtimePath,
		Line:       s.program.Line(),
	})
}

func (s *session) send(msg runtime.Message) {
	record, err := runtime.EncodeMessage(msg)
	if err != nil {
		s.log.Error("encode %T: %v", msg, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("-> %s", record)
	if _, err := s.conn.Write(append(record, '\n')); err != nil {
		s.log.Warn("write: %v", err)
	}
}

func normalizePath(p string) string {
	return path.Clean(strings.ReplaceAll(p, `\`, "/"))
}
