package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReportsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "luadap.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	go func() {
		_ = w.Run(ctx, func() { changed <- struct{}{} }, nil)
	}()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestWatcher_Debounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "luadap.yaml")

	w, err := New(path, WithDebounce(200*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go func() {
		_ = w.Run(ctx, func() { calls.Add(1) }, nil)
	}()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(600 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 notification, got %d", got)
	}
}

func TestWatcher_Close(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "luadap.toml"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- w.Run(context.Background(), func() {}, nil)
	}()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrWatcherClosed) {
			t.Errorf("Run() = %v, want ErrWatcherClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope", "luadap.toml")); err == nil {
		t.Error("expected error for missing directory")
	}
}
