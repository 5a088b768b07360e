// Package watcher guards the database file. The dynamic tables and the
// in-process registry are only coherent while that file exists; if it is
// deleted out from under the process the safest move is a loud shutdown.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher watches the database file for deletion. fsnotify cannot watch a
// path that may disappear, so the parent directory is watched instead. A
// short debounce absorbs editors and tools that replace files via
// remove-then-create.
type Watcher struct {
	dbPath     string
	parentPath string
	onDeleted  func()
	fsw        *fsnotify.Watcher
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	debounce   time.Duration
}

// New creates a watcher for the database at dbPath. onDeleted fires once if
// the file goes away and stays away past the debounce window.
func New(dbPath string, onDeleted func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dbPath:     filepath.Clean(dbPath),
		parentPath: filepath.Dir(dbPath),
		onDeleted:  onDeleted,
		fsw:        fsw,
		debounce:   200 * time.Millisecond,
	}, nil
}

// Start begins watching. Safe to call once; further calls are no-ops.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.fsw.Add(w.parentPath); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	go w.loop(ctx)
	return nil
}

// Stop stops watching and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var pending *time.Timer

	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			name := filepath.Clean(event.Name)

			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && (name == w.dbPath || name == w.parentPath) {
				log.Warn().Str("path", name).Msg("Database file removed")
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(w.debounce, w.fireDeleted)
				continue
			}

			// The file came back inside the debounce window, likely an
			// atomic replace. Stand down.
			if pending != nil && name == w.dbPath && event.Op&fsnotify.Create != 0 {
				log.Info().Str("path", name).Msg("Database file reappeared, shutdown cancelled")
				pending.Stop()
				pending = nil
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) fireDeleted() {
	log.Error().Str("path", w.dbPath).Msg("Database deleted while serving, shutting down")
	if w.onDeleted != nil {
		w.onDeleted()
	}
}
