// Package ui renders ingest progress as a bubbletea view on terminals and
// as plain lines everywhere else.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/pkms-dev/pkms/internal/collection"
)

// Stage is an ingest pipeline step as shown to the user.
type Stage int

const (
	StageDiscover Stage = iota
	StageScreen
	StageIndex
	StageStore
	StageComplete
)

// pipeline lists the stages that carry counts.
var pipeline = []Stage{StageDiscover, StageScreen, StageIndex, StageStore}

// StageFrom maps a collection progress stage.
func StageFrom(s collection.Stage) Stage {
	switch s {
	case collection.StageScreen:
		return StageScreen
	case collection.StageIndex:
		return StageIndex
	case collection.StageStore:
		return StageStore
	default:
		return StageDiscover
	}
}

func (s Stage) String() string {
	switch s {
	case StageDiscover:
		return "Discover"
	case StageScreen:
		return "Screen"
	case StageIndex:
		return "Index"
	case StageStore:
		return "Store"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon is the short tag used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StageDiscover:
		return "WALK"
	case StageScreen:
		return "SCREEN"
	case StageIndex:
		return "INDEX"
	case StageStore:
		return "STORE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Collection  string
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent reports a file that failed (or, as a warning, was rejected).
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// CompletionStats summarizes one or more ingest reports.
type CompletionStats struct {
	Collections int
	Files       int
	Indexed     int
	Skipped     int
	Rejected    int
	Failed      int
	DryRun      bool
	Duration    time.Duration
}

// StatsFromReports totals reports into a summary.
func StatsFromReports(reports ...*collection.Report) CompletionStats {
	var s CompletionStats
	for _, r := range reports {
		if r == nil {
			continue
		}
		s.Collections++
		s.Files += len(r.Items)
		s.Indexed += r.Count(collection.StatusIndexed) + r.Count(collection.StatusDryRun)
		s.Skipped += r.Count(collection.StatusSkipped)
		s.Rejected += r.Count(collection.StatusRejected)
		s.Failed += r.Count(collection.StatusFailed)
		s.DryRun = s.DryRun || r.DryRun
		s.Duration += r.Duration
	}
	return s
}

// Renderer displays ingest progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// ProgressFunc adapts r to a collection progress callback. An empty
// collectionName labels events with the collection that emitted them.
func ProgressFunc(r Renderer, collectionName string) collection.ProgressFunc {
	return func(p collection.Progress) {
		name := collectionName
		if name == "" {
			name = p.Collection
		}
		r.UpdateProgress(ProgressEvent{
			Collection:  name,
			Stage:       StageFrom(p.Stage),
			Current:     p.Current,
			Total:       p.Total,
			CurrentFile: p.File,
		})
	}
}

// ReportErrors forwards failed items as errors and rejected items as
// warnings.
func ReportErrors(r Renderer, report *collection.Report) {
	if report == nil {
		return
	}
	for _, it := range report.Items {
		switch it.Status {
		case collection.StatusFailed:
			r.AddError(ErrorEvent{File: it.Location.URI(), Err: it.Err})
		case collection.StatusRejected:
			err := it.Err
			if err == nil {
				err = rejection(it.Reason)
			}
			r.AddError(ErrorEvent{File: it.Location.URI(), Err: err, IsWarn: true})
		}
	}
}

type rejection string

func (r rejection) Error() string { return string(r) }

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the TUI header, usually the workspace directory.
	Title string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithTitle sets the TUI header title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) { c.Title = title }
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer on an interactive terminal and the
// plain renderer for pipes, CI and --plain.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether a common CI variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
