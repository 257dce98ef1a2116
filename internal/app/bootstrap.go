package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/luadap/internal/config"
	"github.com/dshills/luadap/internal/debug"
	"github.com/dshills/luadap/internal/logging"
)

// bootstrap initializes components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Config: defaults, file, environment, then flags
	cfg, err := config.Load(app.opts.ConfigPath, app.opts.ConfigOptions...)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	if err := app.applyOptions(cfg); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.config = cfg

	// 2. Logging
	if err := app.setupLogging(cfg); err != nil {
		return &InitError{Component: "logging", Err: err}
	}

	// 3. Source path mapping
	roots := cfg.Sources.Roots
	if len(roots) == 0 {
		roots = []string{"."}
	}
	app.paths, err = debug.NewPathMapper(roots, cfg.Sources.Patterns)
	if err != nil {
		return &InitError{Component: "sources", Err: err}
	}
	app.log.Debug("source roots %s", strings.Join(app.paths.Roots(), ", "))

	// 4. Live reload
	if app.opts.Watch && app.opts.ConfigPath != "" {
		app.reloader, err = config.NewReloader(app.opts.ConfigPath, app.opts.ConfigOptions...)
		if err != nil {
			return &InitError{Component: "config watcher", Err: err}
		}
	}

	return nil
}

// applyOptions lays command-line overrides over the loaded configuration.
func (app *Application) applyOptions(cfg *config.Config) error {
	overrides := map[string]map[string]any{}
	set := func(section, key string, value any) {
		if overrides[section] == nil {
			overrides[section] = map[string]any{}
		}
		overrides[section][key] = value
	}

	o := app.opts
	if o.Mode != "" {
		set("listen", "mode", o.Mode)
	}
	if o.ListenAddress != "" {
		set("listen", "address", o.ListenAddress)
	}
	if o.RuntimeAddress != "" {
		set("runtime", "address", o.RuntimeAddress)
	}
	if o.LogLevel != "" {
		set("log", "level", o.LogLevel)
	}
	if o.LogFile != "" {
		set("log", "file", o.LogFile)
	}
	if len(o.SourceRoots) > 0 {
		set("sources", "roots", o.SourceRoots)
	}

	values := make(map[string]any, len(overrides))
	for section, fields := range overrides {
		values[section] = fields
	}
	if err := cfg.Apply(values); err != nil {
		return err
	}
	return cfg.Validate()
}

// setupLogging creates the logger. Logs never go to stdout: in stdio mode it
// carries the protocol stream.
func (app *Application) setupLogging(cfg *config.Config) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel()

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return fmt.Errorf("log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		app.logFile = f
		logCfg.Output = f
	}

	app.log = logging.New(logCfg)
	return nil
}
