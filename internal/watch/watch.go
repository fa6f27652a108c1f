// Package watch re-triggers an apply when watched files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ignored directory names, never watched.
var ignored = map[string]bool{
	".git":        true,
	"__pycache__": true,
}

// Watcher collects changes under a set of files and directory trees and
// reports them in debounced batches.
type Watcher struct {
	watcher  *fsnotify.Watcher
	trees    []string
	files    map[string]bool
	debounce time.Duration
	logger   *slog.Logger

	pending map[string]time.Time
}

// New watches paths. Directories are watched recursively; files are watched
// through their parent so editors that replace files are still seen.
func New(paths []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]bool),
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]time.Time),
	}

	for _, p := range paths {
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
		if info.IsDir() {
			w.trees = append(w.trees, p)
			err = w.addTree(p)
		} else {
			w.files[p] = true
			err = fw.Add(filepath.Dir(p))
		}
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignored[d.Name()] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// relevant reports whether a change to path matters.
func (w *Watcher) relevant(path string) bool {
	if w.files[path] {
		return true
	}
	if strings.HasSuffix(path, ".pyc") || strings.HasSuffix(path, "~") {
		return false
	}
	for _, root := range w.trees {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			continue
		}
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if ignored[part] {
				return false
			}
		}
		return true
	}
	return false
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !w.relevant(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watching new directory failed", "path", ev.Name, "error", err)
			}
		}
	}
	w.logger.Debug("change", "path", ev.Name, "op", ev.Op.String())
	w.pending[ev.Name] = time.Now()
}

// due returns pending paths that have been quiet for the debounce period.
// The batch fires only once every pending path is quiet.
func (w *Watcher) due(now time.Time) []string {
	if len(w.pending) == 0 {
		return nil
	}
	for _, last := range w.pending {
		if now.Sub(last) < w.debounce {
			return nil
		}
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	clear(w.pending)
	return paths
}

// Run delivers batches of changed paths to fn until ctx is cancelled. An
// error from fn is logged and watching continues.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, changed []string) error) error {
	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.Error("watch error", "error", err)

		case now := <-ticker.C:
			changed := w.due(now)
			if len(changed) == 0 {
				continue
			}
			w.logger.Info("changes detected", "paths", len(changed))
			if err := fn(ctx, changed); err != nil {
				w.logger.Error("apply after change failed", "error", err)
			}
		}
	}
}
