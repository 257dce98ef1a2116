package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"luadap.toml", "*loader.TOMLLoader"},
		{"luadap.yaml", "*loader.YAMLLoader"},
		{"LUADAP.YML", "*loader.YAMLLoader"},
	}
	for _, tt := range tests {
		l, err := ForPath(tt.path)
		if err != nil {
			t.Fatalf("ForPath(%q) error = %v", tt.path, err)
		}
		if got := fmt.Sprintf("%T", l); got != tt.want {
			t.Errorf("ForPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}

	if _, err := ForPath("luadap.json"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestTOMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/luadap.toml", `
[runtime]
host = "10.0.0.5"
port = 20000
dialTimeout = "2s"

[sources]
roots = ["game", "mods"]
`)

	config, err := NewTOMLLoaderWithFS(memfs, "/luadap.toml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rt, ok := config["runtime"].(map[string]any)
	if !ok {
		t.Fatal("expected runtime to be a map")
	}
	if rt["host"] != "10.0.0.5" {
		t.Errorf("host = %v, want 10.0.0.5", rt["host"])
	}
	if rt["port"] != int64(20000) {
		t.Errorf("port = %v (%T), want 20000", rt["port"], rt["port"])
	}

	sources := config["sources"].(map[string]any)
	roots, ok := sources["roots"].([]any)
	if !ok || len(roots) != 2 || roots[1] != "mods" {
		t.Errorf("roots = %v", sources["roots"])
	}
}

func TestTOMLLoader_LoadNonExistent(t *testing.T) {
	config, err := NewTOMLLoaderWithFS(NewMemFS(), "/missing.toml").Load()
	if err != nil {
		t.Errorf("expected no error for missing file, got %v", err)
	}
	if config != nil {
		t.Errorf("expected nil config for missing file, got %v", config)
	}
}

func TestTOMLLoader_LoadInvalid(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.toml", "[runtime\nhost = 1\n")

	_, err := NewTOMLLoaderWithFS(memfs, "/bad.toml").Load()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Path != "/bad.toml" {
		t.Errorf("Path = %q", perr.Path)
	}
	if perr.Line == 0 {
		t.Error("expected a line number")
	}
}

func TestYAMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/luadap.yaml", `
log:
  level: debug
listen:
  mode: ws
  address: 127.0.0.1:4711
sources:
  patterns:
    - "scripts/**/*.lua"
`)

	config, err := NewYAMLLoaderWithFS(memfs, "/luadap.yaml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	log, ok := config["log"].(map[string]any)
	if !ok || log["level"] != "debug" {
		t.Errorf("log = %v", config["log"])
	}
	listen := config["listen"].(map[string]any)
	if listen["mode"] != "ws" {
		t.Errorf("listen.mode = %v", listen["mode"])
	}
	patterns := config["sources"].(map[string]any)["patterns"].([]any)
	if len(patterns) != 1 || patterns[0] != "scripts/**/*.lua" {
		t.Errorf("patterns = %v", patterns)
	}
}

func TestYAMLLoader_Empty(t *testing.T) {
	config, err := NewYAMLLoader("").LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if len(config) != 0 {
		t.Errorf("expected empty config, got %v", config)
	}
}

func TestYAMLLoader_LoadInvalid(t *testing.T) {
	_, err := NewYAMLLoader("").LoadFromReader(strings.NewReader("log: [unterminated"))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Path != "<reader>" {
		t.Errorf("Path = %q", perr.Path)
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"runtime": map[string]any{"host": "127.0.0.1", "port": int64(19542)},
		"log":     map[string]any{"level": "info"},
	}
	src := map[string]any{
		"runtime": map[string]any{"port": int64(20000)},
		"listen":  map[string]any{"mode": "tcp"},
	}

	merged := DeepMerge(dst, src)

	rt := merged["runtime"].(map[string]any)
	if rt["host"] != "127.0.0.1" || rt["port"] != int64(20000) {
		t.Errorf("runtime = %v", rt)
	}
	if merged["log"].(map[string]any)["level"] != "info" {
		t.Error("untouched section lost")
	}
	if merged["listen"].(map[string]any)["mode"] != "tcp" {
		t.Error("new section not added")
	}
}

func TestDeepMerge_Nil(t *testing.T) {
	if got := DeepMerge(nil, map[string]any{"a": 1}); got["a"] != 1 {
		t.Errorf("DeepMerge(nil, src) = %v", got)
	}
	dst := map[string]any{"a": 1}
	if got := DeepMerge(dst, nil); got["a"] != 1 {
		t.Errorf("DeepMerge(dst, nil) = %v", got)
	}
}
