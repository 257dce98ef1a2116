package config

import (
	"context"
	"errors"

	"github.com/dshills/luadap/internal/config/watcher"
)

// Reloader re-reads a config file whenever it changes.
type Reloader struct {
	path string
	opts []Option
	w    *watcher.Watcher
}

// NewReloader starts watching path. opts are passed to every Load.
func NewReloader(path string, opts ...Option) (*Reloader, error) {
	w, err := watcher.New(path)
	if err != nil {
		return nil, err
	}
	return &Reloader{path: path, opts: opts, w: w}, nil
}

// Run calls onReload with each successfully reloaded configuration and
// onError with load failures, until ctx is done or Close is called. A
// failed reload leaves the previous configuration in effect.
func (r *Reloader) Run(ctx context.Context, onReload func(*Config), onError func(error)) error {
	report := func(err error) {
		if onError != nil {
			onError(err)
		}
	}

	err := r.w.Run(ctx, func() {
		cfg, err := Load(r.path, r.opts...)
		if err != nil {
			report(err)
			return
		}
		onReload(cfg)
	}, report)

	if errors.Is(err, watcher.ErrWatcherClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops watching.
func (r *Reloader) Close() error {
	return r.w.Close()
}
