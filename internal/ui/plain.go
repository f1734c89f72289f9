package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one line per update, for CI logs and pipes.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
	// last remembers the previous percentage decile per stage so a large
	// run prints tens of lines, not thousands.
	last map[Stage]int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, last: make(map[Stage]int)}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	prefix := "[" + event.Stage.Icon() + "]"
	if event.Collection != "" {
		prefix += " " + event.Collection
	}

	if event.Total <= 0 {
		if msg != "" {
			_, _ = fmt.Fprintf(r.out, "%s %s\n", prefix, msg)
		}
		return
	}

	decile := event.Current * 10 / event.Total
	if prev, ok := r.last[event.Stage]; ok && decile == prev && event.Current != event.Total {
		return
	}
	r.last[event.Stage] = decile
	_, _ = fmt.Fprintf(r.out, "%s %d/%d - %s\n", prefix, event.Current, event.Total, msg)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	verb := "indexed"
	if stats.DryRun {
		verb = "would index"
	}
	_, _ = fmt.Fprintf(r.out, "Complete: %d of %d files %s in %s",
		stats.Indexed, stats.Files, verb, stats.Duration.Round(100*time.Millisecond))
	if stats.Collections > 1 {
		_, _ = fmt.Fprintf(r.out, " across %d collections", stats.Collections)
	}
	_, _ = fmt.Fprintln(r.out)
	if stats.Skipped+stats.Rejected+stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, "  skipped %d, rejected %d, failed %d\n",
			stats.Skipped, stats.Rejected, stats.Failed)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
