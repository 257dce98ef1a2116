package debug

import (
	"context"
	"errors"

	"github.com/google/go-dap"

	dapconn "github.com/dshills/luadap/internal/debug/dap"
	"github.com/dshills/luadap/internal/debug/runtime"
	"github.com/dshills/luadap/internal/logging"
)

// inboxSize is the session loop's mailbox capacity.
const inboxSize = 256

// ObservableTransport is a RuntimeTransport that reports inbound messages and
// connection loss through callbacks.
type ObservableTransport interface {
	RuntimeTransport
	OnMessage(handler func(runtime.Message))
	OnClose(handler func(error))
}

// ServeOptions configures one session.
type ServeOptions struct {
	// Runtime is used to create the runtime transport when Transport is nil.
	Runtime runtime.Config

	// Transport overrides the runtime transport.
	Transport ObservableTransport

	Logger    *logging.Logger
	Paths     *PathMapper
	Inspector VariableInspector
}

// input is one item of the session loop's inbox.
type input interface {
	isInput()
}

type frontendRequest struct{ msg dap.Message }

type frontendUnsupported struct {
	seq     int
	command string
}

type frontendClosed struct{ err error }

type runtimeMessage struct{ msg runtime.Message }

type runtimeClosed struct{ err error }

func (frontendRequest) isInput()     {}
func (frontendUnsupported) isInput() {}
func (frontendClosed) isInput()      {}
func (runtimeMessage) isInput()      {}
func (runtimeClosed) isInput()       {}

// Serve runs one debug session over conn until the front end disconnects,
// the connection fails or ctx is cancelled. conn is closed on return.
//
// Both readers only enqueue; every adapter call happens on the calling
// goroutine, so registry, session and correlator state are never mutated
// concurrently.
func Serve(ctx context.Context, conn dapconn.Conn, opts ServeOptions) error {
	log := opts.Logger
	if log == nil {
		log = logging.Null()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	inbox := make(chan input, inboxSize)
	post := func(in input) {
		select {
		case inbox <- in:
		case <-ctx.Done():
		}
	}

	transport := opts.Transport
	var rt *runtime.Transport
	if transport == nil {
		rt = runtime.NewTransport(opts.Runtime, log)
		transport = rt
	}
	transport.OnMessage(func(msg runtime.Message) { post(runtimeMessage{msg: msg}) })
	transport.OnClose(func(err error) { post(runtimeClosed{err: err}) })
	defer transport.Close()

	adapter := NewAdapter(AdapterOptions{
		Transport: transport,
		Logger:    log,
		Paths:     opts.Paths,
		Inspector: opts.Inspector,
		Emitter: EmitterFunc(func(msg dap.Message) {
			if err := conn.WriteMessage(msg); err != nil {
				log.Warn("write to front end: %v", err)
			}
		}),
	})
	if rt != nil {
		rt.SetLogger(adapter.Logger())
	}
	log = adapter.Logger().WithComponent("serve")
	log.Info("session started")

	go readFrontend(ctx, conn, post, log)

	for {
		select {
		case <-ctx.Done():
			adapter.Shutdown()
			return ctx.Err()

		case in := <-inbox:
			switch v := in.(type) {
			case frontendRequest:
				adapter.HandleRequest(ctx, v.msg)
				if adapter.Disconnected() {
					log.Info("front end disconnected")
					return nil
				}
			case frontendUnsupported:
				adapter.HandleUnsupported(v.seq, v.command)
			case frontendClosed:
				adapter.Shutdown()
				if dapconn.IsClosed(v.err) {
					log.Info("front end closed the connection")
					return nil
				}
				return v.err
			case runtimeMessage:
				adapter.HandleRuntimeMessage(v.msg)
			case runtimeClosed:
				adapter.HandleRuntimeClosed(v.err)
			}
		}
	}
}

func readFrontend(ctx context.Context, conn dapconn.Conn, post func(input), log *logging.Logger) {
	for {
		msg, err := conn.ReadMessage()
		if err == nil {
			post(frontendRequest{msg: msg})
			continue
		}

		var unsupported *dapconn.UnsupportedRequestError
		if errors.As(err, &unsupported) {
			post(frontendUnsupported{seq: unsupported.Seq, command: unsupported.Command})
			continue
		}

		var decodeErr *dapconn.DecodeError
		if errors.As(err, &decodeErr) {
			log.Warn("dropping front-end message: %v", err)
			continue
		}

		if ctx.Err() == nil {
			post(frontendClosed{err: err})
		}
		return
	}
}
