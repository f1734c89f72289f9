package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pkms-dev/pkms/internal/gitignore"
)

// Watcher reports debounced changes under one or more roots. It uses
// fsnotify and falls back to polling when fsnotify cannot be created or
// ForcePolling is set.
type Watcher struct {
	opts      Options
	fs        *fsnotify.Watcher
	poll      *PollingWatcher
	debouncer *Debouncer
	ignore    *gitignore.Matcher

	roots   []string
	events  chan []FileEvent
	errs    chan error
	stopCh  chan struct{}
	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// New creates a watcher. Invalid ignore patterns are rejected.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	ignore, err := gitignore.Compile(opts.IgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("ignore patterns: %w", err)
	}

	w := &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		ignore:    ignore,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errs:      make(chan error, 16),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fs = fsw
			return w, nil
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.poll = NewPollingWatcher(opts.PollInterval)
	return w, nil
}

// Start watches roots until ctx is done or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, roots ...string) error {
	if len(roots) == 0 {
		return errors.New("no roots to watch")
	}
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		a, err := filepath.Abs(r)
		if err != nil {
			return fmt.Errorf("resolve absolute path: %w", err)
		}
		abs = append(abs, filepath.Clean(a))
	}
	w.mu.Lock()
	w.roots = abs
	w.mu.Unlock()

	go w.forward(ctx)

	if w.fs != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}
	slog.Info("watch_started", slog.String("mode", "fsnotify"), slog.Any("roots", w.roots))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-w.poll.Events():
				if !ok {
					return
				}
				if !w.ignored(ev.Path, ev.IsDir) {
					w.debouncer.Add(ev)
				}
			case err, ok := <-w.poll.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	slog.Info("watch_started", slog.String("mode", "polling"), slog.Any("roots", w.roots))
	err := w.poll.Start(ctx, w.roots...)
	if errors.Is(err, context.Canceled) {
		_ = w.Stop()
	}
	return err
}

// handle converts an fsnotify event. New directories are added to the
// watch set.
func (w *Watcher) handle(ev fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if w.ignored(ev.Name, isDir) {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			if err := w.addRecursive(ev.Name); err != nil {
				w.emitError(err)
			}
		}
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: ev.Name, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path, true) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// ignored reports whether an absolute path is outside every root, under
// an excluded directory, inside a .git directory or matched by an ignore
// pattern.
func (w *Watcher) ignored(path string, isDir bool) bool {
	for _, ex := range w.opts.ExcludeDirs {
		if within(path, filepath.Clean(ex)) {
			return true
		}
	}

	w.mu.RLock()
	roots := w.roots
	w.mu.RUnlock()

	for _, root := range roots {
		if !within(path, root) {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return true
		}
		rel = filepath.ToSlash(rel)
		if rel == ".git" || strings.HasPrefix(rel, ".git/") || strings.Contains(rel, "/.git/") {
			return true
		}
		return w.ignore.Match(rel, isDir)
	}
	return true
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped || len(batch) == 0 {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		slog.Warn("watch_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}

// Stop releases resources and closes Events and Errors. Safe to call
// twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fs != nil {
		_ = w.fs.Close()
	}
	if w.poll != nil {
		_ = w.poll.Stop()
	}
	close(w.events)
	close(w.errs)
	return nil
}

// Events returns debounced batches.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watch errors.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Mode is "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fs != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches counts batches lost to a full event buffer.
func (w *Watcher) DroppedBatches() uint64 { return w.dropped.Load() }
