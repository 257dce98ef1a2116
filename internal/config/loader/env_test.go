package loader

import (
	"strings"
	"testing"
	"time"
)

func newTestEnvLoader(env ...string) *EnvLoader {
	l := NewEnvLoader(EnvPrefix)
	l.environ = func() []string { return env }
	return l
}

func TestEnvLoader_Load(t *testing.T) {
	l := newTestEnvLoader(
		"LUADAP_LOG_LEVEL=debug",
		"LUADAP_RUNTIME_PORT=20000",
		"LUADAP_RUNTIME_DIAL_TIMEOUT=750ms",
		"LUADAP_SOURCE_ROOTS=[\"/game\",\"/mods\"]",
		"HOME=/root",
	)

	config, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if val, ok := getByPath(config, "log.level"); !ok || val != "debug" {
		t.Errorf("log.level = %v, want 'debug'", val)
	}
	if val, ok := getByPath(config, "runtime.port"); !ok || val != int64(20000) {
		t.Errorf("runtime.port = %v (%T), want 20000", val, val)
	}
	if val, ok := getByPath(config, "runtime.dialTimeout"); !ok || val != 750*time.Millisecond {
		t.Errorf("runtime.dialTimeout = %v, want 750ms", val)
	}
	roots, ok := getByPath(config, "sources.roots")
	if list, isList := roots.([]any); !ok || !isList || len(list) != 2 {
		t.Errorf("sources.roots = %v", roots)
	}
	if _, ok := config["home"]; ok {
		t.Error("unprefixed variables must be ignored")
	}
}

func TestEnvLoader_Aliases(t *testing.T) {
	config, _ := newTestEnvLoader("LUADAP_RUNTIME=10.1.1.1:1234", "LUADAP_LISTEN=:4711").Load()

	if val, _ := getByPath(config, "runtime.address"); val != "10.1.1.1:1234" {
		t.Errorf("runtime.address = %v", val)
	}
	if val, _ := getByPath(config, "listen.address"); val != ":4711" {
		t.Errorf("listen.address = %v", val)
	}
}

func TestEnvLoader_envToPath(t *testing.T) {
	l := NewEnvLoader(EnvPrefix)

	tests := []struct {
		env  string
		want string
	}{
		{"LUADAP_LOG_LEVEL", "log.level"},
		{"LUADAP_RUNTIME_DIAL_TIMEOUT", "runtime.dialTimeout"},
		{"LUADAP_SOURCES_PATTERNS", "sources.patterns"},
		{"LUADAP_DEBUG", "debug"},
	}
	for _, tt := range tests {
		if got := l.envToPath(tt.env); got != tt.want {
			t.Errorf("envToPath(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestEnvLoader_parseValue(t *testing.T) {
	l := NewEnvLoader(EnvPrefix)

	tests := []struct {
		input string
		want  any
	}{
		{"", ""},
		{"true", true},
		{"off", false},
		{"42", int64(42)},
		{"5s", 5 * time.Second},
		{"stdio", "stdio"},
		{"127.0.0.1:19542", "127.0.0.1:19542"},
	}
	for _, tt := range tests {
		if got := l.parseValue(tt.input); got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
		}
	}
}

func TestEnvLoader_AddMapping(t *testing.T) {
	l := newTestEnvLoader("LUADAP_WS=:9000")
	l.AddMapping("LUADAP_WS", "listen.address")

	config, _ := l.Load()
	if val, _ := getByPath(config, "listen.address"); val != ":9000" {
		t.Errorf("listen.address = %v", val)
	}
}

// getByPath retrieves a value from a nested map using a dot-separated path.
func getByPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
