package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent is one observed edit to a watched shell file.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher surfaces out-of-band edits to the shell's own files so a
// running backend can pick up config and workspace changes.
type Watcher struct {
	homeDir string
	logger  *slog.Logger
	events  chan ReloadEvent
}

func NewWatcher(homeDir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		homeDir: homeDir,
		logger:  logger,
		events:  make(chan ReloadEvent, 16),
	}
}

func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// watchedFiles is the fixed set of files the watcher reports on.
func (w *Watcher) watchedFiles() []string {
	return []string{
		filepath.Join(w.homeDir, configFileName),
		filepath.Join(w.homeDir, "workspaces.json"),
	}
}

// Start begins watching. The event channel closes when ctx ends.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	files := w.watchedFiles()
	for _, file := range files {
		_ = fsw.Add(file)
	}
	// Watching the directory catches creations of files that did not
	// exist when Start ran; unrelated entries are filtered below.
	_ = fsw.Add(w.homeDir)

	go w.run(ctx, fsw, files)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, files []string) {
	defer fsw.Close()
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev, files)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, files []string) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if !watched(files, ev.Name) {
		return
	}
	// Drop rather than block when the consumer lags; the next edit
	// produces a fresh event anyway.
	select {
	case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
	default:
	}
	w.logger.Info("shell file changed", "path", ev.Name, "op", ev.Op.String())
}

func watched(files []string, name string) bool {
	for _, f := range files {
		if f == name {
			return true
		}
	}
	return false
}
