package vocab

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store hands out the current catalog and swaps it when the backing file
// changes. Readers never see a partially loaded catalog.
type Store struct {
	path    string
	current atomic.Pointer[Catalog]
}

// NewStore returns a store holding the catalog at path, or the built-in
// default when path is empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	c := Default()
	if path != "" {
		var err error
		if c, err = Load(path); err != nil {
			return nil, err
		}
	}
	s.current.Store(c)
	return s, nil
}

// StaticStore wraps a fixed catalog.
func StaticStore(c *Catalog) *Store {
	s := &Store{}
	s.current.Store(c)
	return s
}

// Current returns the active catalog.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Reload re-reads the backing file. On error the previous catalog stays
// active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(c)
	return nil
}

// Watch reloads the catalog whenever its file is written, created or
// renamed into place, until ctx is cancelled. The parent directory is
// watched so editors that replace the file atomically are handled.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("vocab: watching", slog.String("path", abs))

	// Debounce bursts of events from a single save.
	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("vocab: watcher stopped")
			return nil

		case <-debounceCh:
			debounceCh = nil
			if err := s.Reload(); err != nil {
				logger.Warn("vocab: reload failed, keeping previous catalog", slog.String("error", err.Error()))
				continue
			}
			logger.Info("vocab: reloaded", slog.String("path", abs))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(100 * time.Millisecond)
			} else {
				debounce.Reset(100 * time.Millisecond)
			}
			debounceCh = debounce.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("vocab: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
