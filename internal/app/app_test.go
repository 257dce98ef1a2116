package app

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/dshills/luadap/internal/config"
)

// testOptions isolates a test from LUADAP_ variables in the environment.
func testOptions(opts Options) Options {
	opts.ConfigOptions = append(opts.ConfigOptions, config.WithEnv(nil))
	if opts.LogLevel == "" {
		opts.LogLevel = "error"
	}
	return opts
}

func initializeRequest(seq int) *dap.InitializeRequest {
	return &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{AdapterID: "myengine-lua", LinesStartAt1: true, ColumnsStartAt1: true},
	}
}

func startApp(t *testing.T, opts Options) (*Application, chan error) {
	t.Helper()
	app, err := New(testOptions(opts))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- app.Run() }()
	t.Cleanup(app.Shutdown)

	if opts.Mode == "tcp" || opts.Mode == "ws" {
		select {
		case <-app.Ready():
		case <-time.After(2 * time.Second):
			t.Fatal("listener not ready")
		}
	}
	return app, done
}

func TestNewApplication(t *testing.T) {
	app, err := New(testOptions(Options{}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer app.Shutdown()

	cfg := app.Config()
	if cfg == nil {
		t.Fatal("expected config to be initialized")
	}
	if cfg.Listen.Mode != config.ModeStdio {
		t.Errorf("expected stdio mode, got %q", cfg.Listen.Mode)
	}
	if app.Logger() == nil {
		t.Error("expected logger to be initialized")
	}
	if app.paths == nil || len(app.paths.Roots()) != 1 {
		t.Error("expected the working directory as the default source root")
	}
	if app.IsRunning() {
		t.Error("expected IsRunning() to be false before Run()")
	}
	if app.Addr() != "" {
		t.Errorf("expected no listener address, got %q", app.Addr())
	}
}

func TestNew_OptionsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luadap.toml")
	content := "[runtime]\nport = 20000\n[listen]\nmode = \"ws\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := New(testOptions(Options{
		ConfigPath:     path,
		Mode:           "tcp",
		RuntimeAddress: "10.0.0.1:5000",
		SourceRoots:    []string{t.TempDir()},
	}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer app.Shutdown()

	cfg := app.Config()
	if cfg.Listen.Mode != config.ModeTCP {
		t.Errorf("Listen.Mode = %q, want tcp", cfg.Listen.Mode)
	}
	if cfg.RuntimeAddress() != "10.0.0.1:5000" {
		t.Errorf("RuntimeAddress() = %q", cfg.RuntimeAddress())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(testOptions(Options{Mode: "pipe"}))

	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected InitError, got %v", err)
	}
	if initErr.Component != "config" {
		t.Errorf("Component = %q", initErr.Component)
	}
	if !errors.Is(err, config.ErrValidationFailed) {
		t.Errorf("expected validation failure, got %v", err)
	}
}

func TestNew_LogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "luadap.log")

	app, err := New(testOptions(Options{LogFile: logPath, LogLevel: "info"}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	app.Shutdown()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "shutdown") {
		t.Errorf("expected shutdown line in log, got %q", data)
	}
}

func TestApplication_ShutdownIdempotent(t *testing.T) {
	app, err := New(testOptions(Options{}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	app.Shutdown()
	app.Shutdown()
}

func TestApplication_RunTwice(t *testing.T) {
	app, done := startApp(t, Options{Mode: "tcp", ListenAddress: "127.0.0.1:0"})

	if err := app.Run(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}

	app.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestApplication_TCPSession(t *testing.T) {
	app, _ := startApp(t, Options{Mode: "tcp", ListenAddress: "127.0.0.1:0"})

	conn, err := net.DialTimeout("tcp", app.Addr(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := dap.WriteProtocolMessage(conn, initializeRequest(1)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := dap.ReadProtocolMessage(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp, ok := msg.(*dap.InitializeResponse)
	if !ok {
		t.Fatalf("expected InitializeResponse, got %T", msg)
	}
	if !resp.Success || resp.RequestSeq != 1 {
		t.Errorf("unexpected response %+v", resp.Response)
	}

	if got := app.Metrics().Snapshot().SessionsStarted; got != 1 {
		t.Errorf("SessionsStarted = %d, want 1", got)
	}
}

func TestApplication_WebSocketSession(t *testing.T) {
	app, _ := startApp(t, Options{Mode: "ws", ListenAddress: "127.0.0.1:0"})

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+app.Addr()+config.DefaultWebSocketPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	err = ws.WriteMessage(websocket.TextMessage, []byte(`{"seq":1,"type":"request","command":"threads"}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, body, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := gjson.GetBytes(body, "command").String(); got != "threads" {
		t.Errorf("command = %q, want threads", got)
	}
	if got := gjson.GetBytes(body, "body.threads.0.id").Int(); got != 1 {
		t.Errorf("thread id = %d, want 1", got)
	}
}

func TestApplication_Stdio(t *testing.T) {
	front, back := net.Pipe()
	defer front.Close()

	_, done := startApp(t, Options{Stdio: back})

	if err := dap.WriteProtocolMessage(front, initializeRequest(1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	reader := bufio.NewReader(front)
	front.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := dap.ReadProtocolMessage(reader); err != nil {
		t.Fatalf("read: %v", err)
	}

	disconnect := &dap.DisconnectRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "request"},
			Command:         "disconnect",
		},
	}
	go func() {
		// Drain the initialized event and the remaining responses.
		for {
			if _, err := dap.ReadProtocolMessage(reader); err != nil {
				return
			}
		}
	}()
	if err := dap.WriteProtocolMessage(front, disconnect); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stdio session did not end after disconnect")
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"", nil, true},
		{"http://localhost:3000", nil, true},
		{"http://127.0.0.1:8080", nil, true},
		{"http://[::1]", nil, true},
		{"https://evil.example.com", nil, false},
		{"https://editor.example.com", []string{"https://editor.example.com"}, true},
		{"https://evil.example.com", []string{"*"}, true},
		{"::not a url", nil, false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/dap", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := originAllowed(r, tt.allowed); got != tt.want {
			t.Errorf("originAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}

func TestApplication_WebSocketRejectsForeignOrigin(t *testing.T) {
	app, _ := startApp(t, Options{Mode: "ws", ListenAddress: "127.0.0.1:0"})
	url := "ws://" + app.Addr() + config.DefaultWebSocketPath

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected the handshake to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}

	header.Set("Origin", "http://localhost:5173")
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("loopback origin refused: %v", err)
	}
	ws.Close()
}
