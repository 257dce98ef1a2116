// Package logging provides the levelled, field-carrying logger used by every
// luadap component.
//
// Output always goes to stderr or a file. In stdio mode stdout carries the
// Debug Adapter Protocol stream and must never receive log lines.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level of a log message.
type Level int

const (
	// LevelDebug is for protocol traces and state transitions.
	LevelDebug Level = iota
	// LevelInfo is for session lifecycle messages.
	LevelInfo
	// LevelWarn is for dropped messages and rejected commands.
	LevelWarn
	// LevelError is for session-fatal conditions.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name. Unknown names are reported as an error so
// configuration typos surface at startup.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", s)
	}
}

// output serializes writes from every logger that ends up on one writer.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// sink is shared between a logger and everything derived from it with
// With/WithComponent, so a level change made through any of them applies to
// all. Fork starts a new sink on the same output.
type sink struct {
	mu       sync.Mutex
	level    Level
	disabled bool
	out      *output
}

// Logger writes levelled lines with an optional prefix and sorted key=value
// fields. Loggers derived with With/WithComponent share level and output;
// a Fork shares only the output.
type Logger struct {
	sink   *sink
	prefix string
	fields map[string]any
}

// Config configures a Logger.
type Config struct {
	// Level is the minimum level written.
	Level Level
	// Output is where lines are written. Defaults to os.Stderr.
	Output io.Writer
	// Prefix is written after the level on every line.
	Prefix string
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Prefix: "luadap",
	}
}

// New creates a logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return &Logger{
		sink:   &sink{level: cfg.Level, out: &output{w: cfg.Output}},
		prefix: cfg.Prefix,
	}
}

// Null returns a logger that discards everything.
func Null() *Logger {
	return &Logger{sink: &sink{disabled: true, out: &output{w: io.Discard}}}
}

// Fork returns a logger with the same prefix, fields and output but its own
// level, starting at the current one. Use it to change verbosity for one
// session without touching the logger it came from.
func (l *Logger) Fork() *Logger {
	l.sink.mu.Lock()
	forked := &sink{level: l.sink.level, disabled: l.sink.disabled, out: l.sink.out}
	l.sink.mu.Unlock()
	return &Logger{sink: forked, prefix: l.prefix, fields: l.fields}
}

// With returns a derived logger carrying an extra field.
func (l *Logger) With(key string, value any) *Logger {
	fields := make(map[string]any, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{sink: l.sink, prefix: l.prefix, fields: fields}
}

// WithComponent returns a derived logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return l.With("component", component)
}

// SetLevel sets the minimum level for this logger and every logger derived
// from it with With/WithComponent. Forks are not affected.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// SetOutput replaces the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.out.mu.Lock()
	defer l.sink.out.mu.Unlock()
	l.sink.out.w = w
}

// Enabled reports whether a line at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return !l.sink.disabled && level >= l.sink.level
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02T15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, l.fields[k])
		}
		b.WriteString("}")
	}
	b.WriteString("\n")

	out := l.sink.out
	out.mu.Lock()
	defer out.mu.Unlock()
	_, _ = io.WriteString(out.w, b.String())
}
