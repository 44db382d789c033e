package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jonwraymond/healthops/observe"
)

// ManifestWatcher reloads the probe manifest when its file changes.
//
// The parent directory is watched so editors that replace the file by
// rename are seen. Bursts of events are debounced into one reload. A
// manifest that fails to load, or that apply rejects, leaves the running
// probes untouched.
type ManifestWatcher struct {
	path     string
	debounce time.Duration
	apply    func(context.Context, *Manifest) error
	logger   observe.Logger

	mu      sync.Mutex
	timer   *time.Timer
	reloads int
}

// NewManifestWatcher creates a watcher. apply receives each successfully
// parsed manifest.
func NewManifestWatcher(path string, debounce time.Duration, logger observe.Logger, apply func(context.Context, *Manifest) error) *ManifestWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &ManifestWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		apply:    apply,
		logger:   logger.WithComponent("manifest"),
	}
}

// Run watches until ctx is done. It returns an error only if the watch
// cannot be established.
func (w *ManifestWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	w.logger.Info(ctx, "watching manifest", observe.Field{Key: "path", Value: w.path})

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(ctx, "manifest watcher error", observe.Field{Key: "error", Value: err.Error()})
		}
	}
}

func (w *ManifestWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.Reload(ctx) })
}

func (w *ManifestWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Reload loads the manifest and applies it. It reports whether the new
// manifest was applied.
func (w *ManifestWatcher) Reload(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	m, err := LoadManifest(w.path)
	if err != nil {
		w.logger.Warn(ctx, "manifest reload rejected", observe.Field{Key: "error", Value: err.Error()})
		return false
	}
	if err := w.apply(ctx, m); err != nil {
		w.logger.Warn(ctx, "manifest reload rejected", observe.Field{Key: "error", Value: err.Error()})
		return false
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.logger.Info(ctx, "manifest reloaded", observe.Field{Key: "probes", Value: len(m.Probes)})
	return true
}

// Reloads returns how many reloads have been applied.
func (w *ManifestWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}
