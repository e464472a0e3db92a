package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// debounce collapses the burst of events an editor or an atomic rename
// produces into one reload.
const debounce = 100 * time.Millisecond

// Watcher calls a reload function whenever the watched file changes on
// disk. The parent directory is watched, since atomic saves replace the
// file and would drop a watch on the file itself.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	reload func() error
}

// NewWatcher watches path and calls reload after each change.
func NewWatcher(path string, reload func() error) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve settings path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	return &Watcher{fsw: fsw, path: abs, reload: reload}, nil
}

// Run dispatches change events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
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
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			zlog.Debug().Msgf("store: settings file changed: path=%s", w.path)
			if err := w.reload(); err != nil {
				zlog.Warn().Msgf("store: failed to reload settings: %v", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("store: watch error: %v", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
