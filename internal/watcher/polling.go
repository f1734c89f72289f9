package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning its roots every interval
// and diffing modification time and size.
type PollingWatcher struct {
	interval time.Duration
	state    map[string]snapshot
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
	roots    []string
}

type snapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		state:    make(map[string]snapshot),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 16),
		stopCh:   make(chan struct{}),
	}
}

// Start takes a baseline and then polls until ctx is done or Stop is
// called. Paths in events are absolute.
func (p *PollingWatcher) Start(ctx context.Context, roots ...string) error {
	p.mu.Lock()
	p.roots = roots
	p.state = p.walk()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll rescans once and emits the differences from the previous scan.
func (p *PollingWatcher) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	now := time.Now()
	current := p.walk()

	for path, snap := range current {
		prev, seen := p.state[path]
		switch {
		case !seen:
			p.emit(FileEvent{Path: path, Operation: OpCreate, IsDir: snap.isDir, Timestamp: now})
		case !snap.isDir && (prev.modTime != snap.modTime || prev.size != snap.size):
			p.emit(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path, snap := range p.state {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Operation: OpDelete, IsDir: snap.isDir, Timestamp: now})
		}
	}
	p.state = current
}

// walk must be called with mu held.
func (p *PollingWatcher) walk() map[string]snapshot {
	out := make(map[string]snapshot)
	for _, root := range p.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || path == root {
				return nil
			}
			if d.IsDir() && d.Name() == ".git" {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			out[path] = snapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
			return nil
		})
		if err != nil {
			select {
			case p.errors <- err:
			default:
			}
		}
	}
	return out
}

// emit must be called with mu held.
func (p *PollingWatcher) emit(ev FileEvent) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("poll_event_dropped",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()))
	}
}

// Stop ends polling and closes the channels. Safe to call twice.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns raw, undebounced events.
func (p *PollingWatcher) Events() <-chan FileEvent { return p.events }

// Errors returns scan errors.
func (p *PollingWatcher) Errors() <-chan error { return p.errors }
