// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configuration when one of its files changes on disk.
// Directories are watched rather than files so that editors which replace
// the file on save are still seen.
type Watcher struct {
	paths     []string
	profile   string
	overrides []string
	debounce  time.Duration
	current   atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
	fsw       *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	logger    *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long to wait after the last event before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithOverrides applies key=value overrides on every reload.
func WithOverrides(overrides []string) WatcherOption {
	return func(w *Watcher) {
		w.overrides = append([]string(nil), overrides...)
	}
}

// NewWatcher loads path (plus its profile file) and prepares to watch both.
func NewWatcher(path, profile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		profile:  profile,
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if path != "" {
		w.paths = append(w.paths, path)
		if pp := profileConfigPath(path, profile); pp != "" {
			w.paths = append(w.paths, pp)
		}
	}

	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current.Store(cfg)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := map[string]bool{}
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	w.fsw = fsw
	return w, nil
}

// OnChange registers a callback to be called when config changes.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	return w.current.Load()
}

// Start begins watching for configuration changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for its goroutine to exit.
// It must only be called after Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config.watch.error", slog.String("error", err.Error()))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	for _, p := range w.paths {
		if filepath.Clean(p) == name {
			return true
		}
	}
	return false
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config.reload.failed", slog.String("error", err.Error()))
		return
	}

	w.current.Store(cfg)
	w.mu.Lock()
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	w.logger.Info("config.reloaded", slog.Int("listeners", len(listeners)))
	for _, fn := range listeners {
		fn(cfg)
	}
}

func (w *Watcher) load() (*Config, error) {
	path := ""
	if len(w.paths) > 0 {
		path = w.paths[0]
	}
	return LoadWithOverrides(path, w.profile, w.overrides)
}
