package mousedb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// settleDelay gives an external editor time to finish writing before reload.
const settleDelay = 50 * time.Millisecond

// Watcher reloads a Database whenever its movement file is rewritten by
// something other than the Database itself.
type Watcher struct {
	db      *Database
	path    string
	watcher *fsnotify.Watcher
	log     zerolog.Logger
}

// NewWatcher starts watching the directory holding db's movement file.
// Events are delivered once Run is called.
func NewWatcher(db *Database, log zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	path := filepath.Clean(db.Path())
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		db:      db,
		path:    path,
		watcher: w,
		log:     log.With().Str("component", "movement-watcher").Logger(),
	}, nil
}

// Run handles file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	w.log.Info().Str("path", w.path).Msg("watching movement file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			time.Sleep(settleDelay)
			if w.ownWrite() {
				continue
			}
			if err := w.db.Reload(); err != nil {
				w.log.Warn().Err(err).Msg("reload after file change failed")
				continue
			}
			w.log.Info().Int("indexed", w.db.Len()).Msg("movement file changed, reloaded")

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// ownWrite reports whether the file on disk is the one the Database last saved.
func (w *Watcher) ownWrite() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	saved := w.db.SavedModTime()
	return !saved.IsZero() && info.ModTime().Equal(saved)
}
