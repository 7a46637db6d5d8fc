package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 250 * time.Millisecond

// Watcher keeps the latest valid settings for a config file and reloads
// them when the file changes. An invalid edit is logged and ignored.
type Watcher struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Settings]
	fs      *fsnotify.Watcher
}

// NewWatcher loads path and starts watching its directory. Editors often
// replace files by rename, so the directory is watched rather than the
// file.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	w := &Watcher{path: path, logger: logger, fs: fsw}
	w.current.Store(&s)
	return w, nil
}

// Snapshot returns a copy of the current settings.
func (w *Watcher) Snapshot() Settings {
	return *w.current.Load()
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce = time.After(debounceDelay)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case <-debounce:
			debounce = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.current.Store(&s)
	w.logger.Info("config reloaded",
		zap.String("path", w.path),
		zap.String("model", s.Model),
	)
}
