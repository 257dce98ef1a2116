// Package app wires configuration, logging and the front-end listener
// together and runs debug sessions until shut down.
package app

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/luadap/internal/config"
	"github.com/dshills/luadap/internal/debug"
	"github.com/dshills/luadap/internal/logging"
)

// Application owns the listener and every running session.
type Application struct {
	mu sync.RWMutex

	// Core infrastructure
	config  *config.Config
	log     *logging.Logger
	logFile io.Closer
	paths   *debug.PathMapper
	metrics *Metrics

	// Live reload, nil unless watching
	reloader *config.Reloader

	// Front end
	listener net.Listener
	ready    chan struct{}
	sessions sync.WaitGroup
	closing  bool

	// State
	ctx          context.Context
	cancel       context.CancelFunc
	running      atomic.Bool
	shutdownOnce sync.Once

	// Options
	opts Options
}

// Options configures the application. Non-empty fields override the
// configuration file and environment.
type Options struct {
	// ConfigPath is the path to a TOML or YAML configuration file.
	ConfigPath string

	// Watch reloads the log level when the configuration file changes.
	Watch bool

	// Mode is stdio, tcp or ws.
	Mode string

	// ListenAddress is the TCP or WebSocket listen address.
	ListenAddress string

	// RuntimeAddress is host:port of the engine's debugger port.
	RuntimeAddress string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// LogFile redirects logs from stderr to a file.
	LogFile string

	// SourceRoots are directories engine paths are resolved against.
	SourceRoots []string

	// Stdio replaces stdin/stdout in stdio mode.
	Stdio io.ReadWriteCloser

	// ConfigOptions are passed to every configuration load.
	ConfigOptions []config.Option
}

// New creates an Application with the given options.
func New(opts Options) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		metrics: NewMetrics(),
	}

	if err := app.bootstrap(); err != nil {
		cancel()
		app.closeLog()
		return nil, err
	}

	return app, nil
}

// Run serves front-end connections until Shutdown is called or, in stdio
// mode, the single session ends.
func (app *Application) Run() error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if app.reloader != nil {
		go app.watchConfig()
	}

	cfg := app.Config()
	app.log.Info("luadap starting (mode %s, runtime %s)", cfg.Listen.Mode, cfg.RuntimeAddress())

	var err error
	switch cfg.Listen.Mode {
	case config.ModeTCP:
		err = app.runTCP(cfg.Listen.Address)
	case config.ModeWebSocket:
		err = app.runWebSocket(cfg.Listen.Address, cfg.Listen.Path)
	default:
		err = app.runStdio()
	}

	app.sessions.Wait()
	return err
}

// Shutdown stops accepting connections, ends running sessions and releases
// resources. It is safe to call more than once.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(func() {
		app.cancel()

		app.mu.Lock()
		app.closing = true
		ln := app.listener
		app.mu.Unlock()
		if ln != nil {
			ln.Close()
		}

		if app.reloader != nil {
			app.reloader.Close()
		}

		if app.running.Load() {
			app.sessions.Wait()
		}

		snap := app.metrics.Snapshot()
		app.log.Info("shutdown: %d sessions (%d failed), up %s",
			snap.SessionsStarted, snap.SessionsFailed, snap.Uptime.Round(time.Millisecond))
		app.closeLog()
	})
}

// IsRunning returns true once Run has been called.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the active configuration.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.log
}

// Metrics returns session counters.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

// Ready is closed once a TCP or WebSocket listener is bound.
func (app *Application) Ready() <-chan struct{} {
	return app.ready
}

// Addr returns the bound listener address, or "" in stdio mode or before
// the listener is up.
func (app *Application) Addr() string {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.listener == nil {
		return ""
	}
	return app.listener.Addr().String()
}

// trackSession registers a new session unless shutdown has begun.
func (app *Application) trackSession() bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.closing {
		return false
	}
	app.sessions.Add(1)
	return true
}

func (app *Application) watchConfig() {
	err := app.reloader.Run(app.ctx, func(cfg *config.Config) {
		if app.opts.LogLevel != "" {
			app.log.Debug("config reloaded; log level pinned by flag")
			return
		}
		level := cfg.LogLevel()
		app.log.SetLevel(level)
		app.log.Info("config reloaded; log level %s", level)
	}, func(err error) {
		app.log.Warn("config reload failed: %v", err)
	})
	if err != nil {
		app.log.Warn("config watcher stopped: %v", err)
	}
}

func (app *Application) closeLog() {
	if app.logFile != nil {
		app.logFile.Close()
		app.logFile = nil
	}
}
