// Package watch reruns a function whenever a file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce batches the bursts of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reruns a function when its file is written, created or renamed
// into place.
type Watcher struct {
	path     string
	debounce time.Duration
	run      func(context.Context) error
	fsw      *fsnotify.Watcher
}

// New watches path. The file's directory is watched rather than the file
// itself so that editors replacing the file on save keep triggering runs.
func New(path string, debounce time.Duration, run func(context.Context) error) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: abs, debounce: debounce, run: run, fsw: fsw}, nil
}

// Run calls the function once, then again after every change to the file,
// until ctx is cancelled. Errors returned by the function are logged and
// do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	w.invoke(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("change")
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher")
		case <-timer.C:
			w.invoke(ctx)
		}
	}
}

func (w *Watcher) invoke(ctx context.Context) {
	if err := w.run(ctx); err != nil {
		log.Error().Err(err).Str("file", w.path).Msg("run failed")
	}
}
