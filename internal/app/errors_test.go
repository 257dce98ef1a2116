package app

import (
	"errors"
	"io"
	"testing"
)

func TestComponentError_Error(t *testing.T) {
	base := errors.New("address in use")

	tests := []struct {
		name     string
		err      *ComponentError
		expected string
	}{
		{"nil error", nil, ""},
		{"component only", &ComponentError{Component: "listener"}, "listener"},
		{"with action", &ComponentError{Component: "listener", Action: "accept"}, "listener: accept"},
		{"with error", &ComponentError{Component: "websocket", Err: base}, "websocket: address in use"},
		{"all fields", &ComponentError{Component: "listener", Action: "listen :4711", Err: base}, "listener: listen :4711: address in use"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestComponentError_Unwrap(t *testing.T) {
	err := &ComponentError{Component: "listener", Err: io.EOF}
	if !errors.Is(err, io.EOF) {
		t.Error("expected errors.Is to see the wrapped error")
	}

	var nilErr *ComponentError
	if nilErr.Unwrap() != nil {
		t.Error("nil receiver should unwrap to nil")
	}
}

func TestInitError(t *testing.T) {
	err := &InitError{Component: "config", Err: io.ErrUnexpectedEOF}
	if err.Error() != "init config: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected errors.Is to see the wrapped error")
	}
}
