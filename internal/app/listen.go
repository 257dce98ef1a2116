package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/luadap/internal/debug"
	dapconn "github.com/dshills/luadap/internal/debug/dap"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// originAllowed accepts requests without an Origin header (editors and
// other non-browser clients), loopback origins and the configured ones.
// Any other web page is refused so it cannot drive the debugger.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// runStdio serves exactly one session over stdin/stdout.
func (app *Application) runStdio() error {
	var conn dapconn.Conn
	if app.opts.Stdio != nil {
		conn = dapconn.NewStreamConn(app.opts.Stdio)
	} else {
		conn = dapconn.NewStdioConn()
	}

	err := app.serveSession(conn, "stdio")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runTCP accepts DAP clients and serves each on its own session.
func (app *Application) runTCP(addr string) error {
	ln, err := app.listen(addr)
	if err != nil {
		return err
	}
	app.log.Info("listening for DAP clients on tcp://%s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if app.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return &ComponentError{Component: "listener", Action: "accept", Err: err}
		}

		if !app.trackSession() {
			conn.Close()
			return nil
		}
		go func() {
			defer app.sessions.Done()
			_ = app.serveSession(dapconn.NewSocketConn(conn), conn.RemoteAddr().String())
		}()
	}
}

// runWebSocket accepts DAP clients over WebSocket at path.
func (app *Application) runWebSocket(addr, path string) error {
	ln, err := app.listen(addr)
	if err != nil {
		return err
	}

	allowed := app.Config().Listen.AllowOrigins
	upgrader := &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return originAllowed(r, allowed) },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		app.handleWebSocket(upgrader, w, r)
	})
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-app.ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	app.log.Info("listening for DAP clients on ws://%s%s", ln.Addr(), path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if app.ctx.Err() != nil {
			return nil
		}
		return &ComponentError{Component: "websocket", Action: "serve", Err: err}
	}
	return nil
}

func (app *Application) handleWebSocket(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.log.Warn("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	// Hijacked connections are not tracked by http.Server.Shutdown.
	if !app.trackSession() {
		ws.Close()
		return
	}
	defer app.sessions.Done()
	_ = app.serveSession(dapconn.NewWebSocketConn(ws), r.RemoteAddr)
}

func (app *Application) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &ComponentError{Component: "listener", Action: "listen " + addr, Err: err}
	}

	app.mu.Lock()
	app.listener = ln
	app.mu.Unlock()
	close(app.ready)

	if app.ctx.Err() != nil {
		ln.Close()
	}
	return ln, nil
}

// serveSession runs one debug session and records it in the metrics.
func (app *Application) serveSession(conn dapconn.Conn, peer string) error {
	log := app.log.With("peer", peer)
	cfg := app.Config()

	app.metrics.SessionStarted()
	start := time.Now()
	log.Info("session opened")

	err := debug.Serve(app.ctx, conn, debug.ServeOptions{
		Runtime: cfg.RuntimeConfig(),
		Logger:  log,
		Paths:   app.paths,
	})

	app.metrics.SessionEnded(time.Since(start), err != nil && !errors.Is(err, context.Canceled))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("session ended with error: %v", err)
	} else {
		log.Info("session closed")
	}
	return err
}
