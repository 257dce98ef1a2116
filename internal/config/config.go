package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/luadap/internal/config/loader"
	"github.com/dshills/luadap/internal/debug/runtime"
	"github.com/dshills/luadap/internal/logging"
)

// ListenMode selects how the front end connects.
type ListenMode string

const (
	// ModeStdio speaks DAP on stdin/stdout, one session per process.
	ModeStdio ListenMode = "stdio"
	// ModeTCP accepts DAP clients on a TCP port, one session per connection.
	ModeTCP ListenMode = "tcp"
	// ModeWebSocket accepts DAP clients over WebSocket.
	ModeWebSocket ListenMode = "ws"
)

// Default values.
const (
	DefaultRuntimeHost   = "127.0.0.1"
	DefaultRuntimePort   = 19542
	DefaultListenAddress = "127.0.0.1:4711"
	DefaultWebSocketPath = "/dap"
)

// Config holds every luadap setting.
type Config struct {
	Runtime RuntimeConfig
	Log     LogConfig
	Listen  ListenConfig
	Sources SourcesConfig
}

// RuntimeConfig locates the engine's debugger port.
type RuntimeConfig struct {
	Host        string
	Port        int
	DialTimeout time.Duration
}

// LogConfig configures logging. An empty File means stderr.
type LogConfig struct {
	Level string
	File  string
}

// ListenConfig configures the front-end side.
type ListenConfig struct {
	Mode    ListenMode
	Address string
	// Path is the WebSocket upgrade path.
	Path string
	// AllowOrigins lists browser origins accepted on the WebSocket besides
	// loopback ones. "*" accepts any origin.
	AllowOrigins []string
}

// SourcesConfig configures mapping between engine paths and local files.
type SourcesConfig struct {
	Roots    []string
	Patterns []string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Host:        DefaultRuntimeHost,
			Port:        DefaultRuntimePort,
			DialTimeout: runtime.DefaultConfig().DialTimeout,
		},
		Log: LogConfig{Level: "info"},
		Listen: ListenConfig{
			Mode:    ModeStdio,
			Address: DefaultListenAddress,
			Path:    DefaultWebSocketPath,
		},
		Sources: SourcesConfig{
			Patterns: []string{"**/*.lua"},
		},
	}
}

// Option configures Load.
type Option func(*options)

type options struct {
	fs  loader.FileSystem
	env loader.Loader
}

// WithFS reads the config file from fsys.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

// WithEnv replaces the environment source.
func WithEnv(env loader.Loader) Option {
	return func(o *options) { o.env = env }
}

// Load builds a configuration from defaults, the file at path (skipped when
// path is empty) and LUADAP_ environment variables, then validates it.
func Load(path string, opts ...Option) (*Config, error) {
	o := options{fs: loader.DefaultFS(), env: loader.NewEnvLoader(loader.EnvPrefix)}
	for _, opt := range opts {
		opt(&o)
	}

	var values map[string]any
	if path != "" {
		fileLoader, err := loader.ForPathWithFS(o.fs, path)
		if err != nil {
			return nil, err
		}
		values, err = fileLoader.Load()
		if err != nil {
			return nil, err
		}
		if values == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
	}

	if o.env != nil {
		envValues, err := o.env.Load()
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		values = loader.DeepMerge(values, envValues)
	}

	cfg := Default()
	if err := cfg.Apply(values); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply overlays a nested settings map onto c. Unknown keys are rejected so
// typos surface at startup.
func (c *Config) Apply(values map[string]any) error {
	var errs []error
	for section, raw := range values {
		fields, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, &TypeError{Path: section, Expected: "table", Actual: typeName(raw)})
			continue
		}
		for key, value := range fields {
			if err := c.set(section+"."+key, value); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Config) set(path string, value any) error {
	var err error
	switch path {
	case "runtime.host":
		c.Runtime.Host, err = asString(path, value)
	case "runtime.port":
		c.Runtime.Port, err = asInt(path, value)
	case "runtime.dialTimeout":
		c.Runtime.DialTimeout, err = asDuration(path, value)
	case "runtime.address":
		var addr string
		if addr, err = asString(path, value); err == nil {
			err = c.setRuntimeAddress(path, addr)
		}
	case "log.level":
		c.Log.Level, err = asString(path, value)
	case "log.file":
		c.Log.File, err = asString(path, value)
	case "listen.mode":
		var mode string
		mode, err = asString(path, value)
		c.Listen.Mode = ListenMode(strings.ToLower(mode))
	case "listen.address":
		c.Listen.Address, err = asString(path, value)
	case "listen.path":
		c.Listen.Path, err = asString(path, value)
	case "listen.allowOrigins":
		c.Listen.AllowOrigins, err = asStrings(path, value)
	case "sources.roots":
		c.Sources.Roots, err = asStrings(path, value)
	case "sources.patterns":
		c.Sources.Patterns, err = asStrings(path, value)
	default:
		return &ValidationError{Path: path, Message: "unknown setting", Value: value, Code: ErrCodeUnknownSetting}
	}
	return err
}

func (c *Config) setRuntimeAddress(path, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return &ValidationError{Path: path, Message: err.Error(), Value: addr, Code: ErrCodeInvalidEnum}
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return &ValidationError{Path: path, Message: "port is not a number", Value: addr, Code: ErrCodeOutOfRange}
	}
	c.Runtime.Host = host
	c.Runtime.Port = p
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Runtime.Port < 1 || c.Runtime.Port > 65535 {
		errs = append(errs, &ValidationError{Path: "runtime.port", Message: "must be between 1 and 65535", Value: c.Runtime.Port, Code: ErrCodeOutOfRange})
	}
	if c.Runtime.DialTimeout <= 0 {
		errs = append(errs, &ValidationError{Path: "runtime.dialTimeout", Message: "must be positive", Value: c.Runtime.DialTimeout, Code: ErrCodeOutOfRange})
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, &ValidationError{Path: "log.level", Message: "must be debug, info, warn or error", Value: c.Log.Level, Code: ErrCodeInvalidEnum})
	}
	switch c.Listen.Mode {
	case ModeStdio, ModeTCP, ModeWebSocket:
	default:
		errs = append(errs, &ValidationError{Path: "listen.mode", Message: "must be stdio, tcp or ws", Value: c.Listen.Mode, Code: ErrCodeInvalidEnum})
	}
	if c.Listen.Mode == ModeWebSocket && !strings.HasPrefix(c.Listen.Path, "/") {
		errs = append(errs, &ValidationError{Path: "listen.path", Message: "must start with /", Value: c.Listen.Path, Code: ErrCodeInvalidEnum})
	}
	for _, pattern := range c.Sources.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, &ValidationError{Path: "sources.patterns", Message: "invalid glob", Value: pattern, Code: ErrCodeInvalidPattern})
		}
	}
	return errors.Join(errs...)
}

// RuntimeAddress returns host:port of the engine's debugger port.
func (c *Config) RuntimeAddress() string {
	return net.JoinHostPort(c.Runtime.Host, strconv.Itoa(c.Runtime.Port))
}

// RuntimeConfig returns the transport settings.
func (c *Config) RuntimeConfig() runtime.Config {
	return runtime.Config{Address: c.RuntimeAddress(), DialTimeout: c.Runtime.DialTimeout}
}

// LogLevel returns the parsed log level, falling back to info.
func (c *Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

func asString(path string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int64, int, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
}

func asInt(path string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, nil
		}
	}
	return 0, &TypeError{Path: path, Expected: "integer", Actual: typeName(v)}
}

// asDuration accepts a duration string ("750ms") or a number of milliseconds.
func asDuration(path string, v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed, nil
		}
	case int, int64, float64:
		ms, err := asInt(path, d)
		if err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
	}
	return 0, &TypeError{Path: path, Expected: "duration", Actual: typeName(v)}
}

// asStrings accepts a list or a comma-separated string.
func asStrings(path string, v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, &TypeError{Path: path, Expected: "list of strings", Actual: typeName(item)}
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(list, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, &TypeError{Path: path, Expected: "list of strings", Actual: typeName(v)}
	}
}
