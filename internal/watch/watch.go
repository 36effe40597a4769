// Package watch reloads the configuration file when it changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is how long the file must stay quiet before a reload.
const DefaultDelay = 350 * time.Millisecond

// Watcher calls Reload after the watched file settles.
type Watcher struct {
	path   string
	reload func() error
	delay  time.Duration
	log    *slog.Logger
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger used for reload results.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// New returns a Watcher for path. reload runs on the goroutine that called Run, so
// calls never overlap; events arriving during a reload schedule one more reload.
func New(path string, reload func() error, opts ...Option) *Watcher {
	w := &Watcher{
		path:   filepath.Clean(path),
		reload: reload,
		delay:  DefaultDelay,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. The parent directory is watched rather than the
// file, since editors commonly replace the file on save.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// settle fires once the file has been quiet for w.delay; nil while idle.
	var (
		quiet  *time.Timer
		settle <-chan time.Time
	)
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
	}()

	w.log.Debug("watching config file", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("fsnotify: event channel closed")
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.log.Debug("config file event", "op", ev.Op.String(), "path", ev.Name)
			if quiet == nil {
				quiet = time.NewTimer(w.delay)
			} else {
				quiet.Reset(w.delay)
			}
			settle = quiet.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("fsnotify: error channel closed")
			}
			w.log.Error("fsnotify error", "error", err)
		case <-settle:
			settle = nil
			if err := w.reload(); err != nil {
				w.log.Warn("config reload failed, keeping previous configuration", "path", w.path, "error", err)
				continue
			}
			w.log.Info("config reloaded", "path", w.path)
		}
	}
}
