// Package watcher feeds code-file changes under a working directory into the
// session tracker, and buffers the recent conversation around them.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lazypower/recall/internal/session"
	"github.com/lazypower/recall/internal/store"
)

var ignoredParts = []string{
	".git", "__pycache__", ".DS_Store", ".pyc", ".log",
	"node_modules", ".next", ".vscode", ".idea",
}

var codeExts = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".go": true, ".rs": true, ".java": true, ".cpp": true, ".c": true,
	".h": true, ".swift": true, ".kt": true, ".rb": true, ".php": true,
	".scala": true, ".clj": true, ".hs": true, ".ml": true, ".f90": true,
}

// Ignored reports whether any ignore pattern occurs in the path.
func Ignored(path string) bool {
	for _, p := range ignoredParts {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// IsCode reports whether the path has a source-code extension.
func IsCode(path string) bool {
	return codeExts[filepath.Ext(path)]
}

// Sink receives file activity. *session.Tracker satisfies it.
type Sink interface {
	TouchOrStart(ctx context.Context, wc session.WorkingContext, extra ...string) (*store.Session, error)
}

// Watcher follows create and write events below a root directory.
type Watcher struct {
	root     string
	debounce time.Duration
	sink     Sink
	vcs      session.VCS

	fs   *fsnotify.Watcher
	last map[string]time.Time
	now  func() time.Time
}

// New watches root and every directory below it that is not ignored.
func New(root string, debounce time.Duration, sink Sink, vcs session.VCS) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:     abs,
		debounce: debounce,
		sink:     sink,
		vcs:      vcs,
		fs:       fw,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
	if err := w.addTree(abs); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers dir and its subdirectories. fsnotify does not recurse.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("walk %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run forwards changes until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	slog.Info("watching files", "component", "watcher", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "component", "watcher", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	path := filepath.Clean(ev.Name)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.ignored(path) {
				if err := w.addTree(path); err != nil {
					slog.Warn("watch new directory", "component", "watcher", "dir", path, "err", err)
				}
			}
			return
		}
	}

	if w.ignored(path) || !IsCode(path) {
		return
	}
	if !w.accept(path, w.now()) {
		return
	}
	w.forward(ctx, path)
}

// ignored matches the ignore list against path relative to the root.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	return Ignored(rel)
}

// accept drops a change to path seen less than the debounce window after the
// last accepted change to the same path.
func (w *Watcher) accept(path string, at time.Time) bool {
	if prev, ok := w.last[path]; ok && at.Sub(prev) < w.debounce {
		return false
	}
	for p, t := range w.last {
		if at.Sub(t) >= w.debounce {
			delete(w.last, p)
		}
	}
	w.last[path] = at
	return true
}

func (w *Watcher) forward(ctx context.Context, path string) {
	wc := session.WorkingContext{
		Files:      []string{path},
		WorkingDir: w.root,
	}
	if w.vcs != nil {
		wc.Branch = w.vcs.Branch(ctx, w.root)
	}
	s, err := w.sink.TouchOrStart(ctx, wc)
	if err != nil {
		slog.Warn("record file change", "component", "watcher", "file", path, "err", err)
		return
	}
	slog.Debug("file change recorded", "component", "watcher", "file", path, "session", s.ID)
}
