// Package collection ingests one directory tree into an index: it walks
// the tree, screens and indexes the files it selects, and upserts the
// results through a single writer.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/globber"
	"github.com/pkms-dev/pkms/internal/indexer"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/screener"
	"github.com/pkms-dev/pkms/internal/storage"
)

// DefaultBatchSize is the number of upserts committed per transaction.
const DefaultBatchSize = 256

// Store is the write side a collection needs.
type Store interface {
	Transaction(ctx context.Context, fn func(storage.Writer) error) error
}

// Stage identifies a pipeline step in progress events.
type Stage int

const (
	StageDiscover Stage = iota
	StageScreen
	StageIndex
	StageStore
)

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
	default:
		return "Unknown"
	}
}

// Progress is one progress event.
type Progress struct {
	Collection string
	Stage      Stage
	Current    int
	Total      int
	File       string
}

// ProgressFunc receives progress events. Calls are serialized.
type ProgressFunc func(Progress)

// Config wires a collection's components.
type Config struct {
	Name     string
	Root     location.FileLocation
	Globber  *globber.Globber
	Screener *screener.Screener
	Indexers *indexer.Registry
	Store    Store
	// Workers bounds concurrent screen and index work. Zero means 1.
	Workers int
}

// Options tunes a single ingest run.
type Options struct {
	DryRun bool
	// Workers overrides Config.Workers when positive.
	Workers   int
	BatchSize int
	Progress  ProgressFunc
}

// Collection is a named root plus the components that ingest it.
type Collection struct {
	cfg Config
}

// New validates cfg. Root must be an absolute file location.
func New(cfg Config) (*Collection, error) {
	if cfg.Name == "" {
		return nil, amerrors.ConfigError("collection name is required", nil)
	}
	if cfg.Root.Scheme() != location.SchemeFile || !cfg.Root.Segments().IsAbsolute() {
		return nil, amerrors.Newf(amerrors.ErrCodeInvalidPath,
			"collection %s: root must be an absolute file location, got %q", cfg.Name, cfg.Root.URI())
	}
	if cfg.Globber == nil || cfg.Screener == nil || cfg.Indexers == nil {
		return nil, amerrors.ConfigError(
			fmt.Sprintf("collection %s: globber, screener and indexers are required", cfg.Name), nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Collection{cfg: cfg}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.cfg.Name }

// Root returns the collection root.
func (c *Collection) Root() location.FileLocation { return c.cfg.Root }

// Store returns the configured store, which may be nil.
func (c *Collection) Store() Store { return c.cfg.Store }

// Ingest walks the root and ingests every selected file. Per-file
// problems are reported in the Report; the error is reserved for a
// failed walk or a cancelled context.
func (c *Collection) Ingest(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	candidates, err := c.cfg.Globber.Glob(ctx, c.cfg.Root)
	if err != nil {
		return nil, err
	}

	p := c.newProgress(opts)
	p.emit(StageDiscover, len(candidates), len(candidates), "")
	slog.Info("collection_discovered",
		slog.String("collection", c.cfg.Name),
		slog.Int("files", len(candidates)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	items := make([]Item, len(candidates))
	for i, loc := range candidates {
		items[i] = Item{Location: loc}
	}
	return c.run(ctx, items, opts, p, start)
}

// IngestFile ingests one file without walking the tree.
func (c *Collection) IngestFile(ctx context.Context, loc location.FileLocation, opts Options) (*Report, error) {
	return c.IngestFiles(ctx, []location.FileLocation{loc}, opts)
}

// IngestFiles ingests the given files without walking the tree. Each one
// must lie under the root and pass the globber, or it is SKIPPED.
func (c *Collection) IngestFiles(ctx context.Context, locs []location.FileLocation, opts Options) (*Report, error) {
	start := time.Now()
	items := make([]Item, len(locs))
	for i, loc := range locs {
		items[i] = c.admit(loc)
	}
	return c.run(ctx, items, opts, c.newProgress(opts), start)
}

// admit rebases loc onto the root and applies the globber. Items that
// come back with a status are settled.
func (c *Collection) admit(loc location.FileLocation) Item {
	rootSegs := c.cfg.Root.Segments()
	if !loc.SameOrigin(c.cfg.Root) || !loc.Segments().HasPrefix(rootSegs) {
		return Item{Location: loc, Status: StatusSkipped,
			Reason: fmt.Sprintf("outside collection %s", c.cfg.Name)}
	}
	rebased, err := loc.Rebase(rootSegs)
	if err != nil {
		return Item{Location: loc, Status: StatusFailed, Err: err}
	}
	if !c.cfg.Globber.Match(rebased) {
		return Item{Location: rebased, Status: StatusSkipped, Reason: "not selected by globber"}
	}
	return Item{Location: rebased}
}

type pending struct {
	index int
	doc   *indexer.Document
}

// run screens and indexes the unsettled items on a bounded pool and
// funnels documents to one writer goroutine.
func (c *Collection) run(ctx context.Context, items []Item, opts Options, p *progress, start time.Time) (*Report, error) {
	report := &Report{
		RunID:      uuid.NewString(),
		Collection: c.cfg.Name,
		DryRun:     opts.DryRun,
		Items:      items,
	}

	if !opts.DryRun && c.cfg.Store == nil {
		return nil, amerrors.ConfigError(fmt.Sprintf("collection %s has no storage", c.cfg.Name), nil)
	}

	workers := c.cfg.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	log := slog.With(slog.String("collection", c.cfg.Name), slog.String("run_id", report.RunID))
	log.Info("ingest_started",
		slog.Int("files", len(items)),
		slog.Int("workers", workers),
		slog.Bool("dry_run", opts.DryRun))

	docs := make(chan pending, workers)
	writerDone := make(chan struct{})
	if !opts.DryRun {
		go func() {
			defer close(writerDone)
			c.write(ctx, docs, items, batch, p)
		}()
	} else {
		close(writerDone)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range items {
		if items[i].Status != "" {
			continue
		}
		g.Go(func() error {
			c.process(ctx, i, items, opts.DryRun, docs, p)
			return nil
		})
	}
	_ = g.Wait()
	close(docs)
	<-writerDone

	for _, it := range items {
		switch it.Status {
		case StatusFailed:
			log.Warn("file_failed", append([]any{slog.String("uri", it.Location.URI())},
				amerrors.FormatForLog(it.Err)...)...)
		case StatusRejected:
			log.Debug("file_rejected", slog.String("uri", it.Location.URI()), slog.String("reason", it.Reason))
		}
	}

	report.tally()
	report.Duration = time.Since(start)
	log.Info("ingest_completed",
		slog.Int("indexed", report.Count(StatusIndexed)),
		slog.Int("skipped", report.Count(StatusSkipped)),
		slog.Int("rejected", report.Count(StatusRejected)),
		slog.Int("failed", report.Failed),
		slog.Int64("duration_ms", report.Duration.Milliseconds()))

	return report, ctx.Err()
}

// process settles items[i] or hands its document to the writer. Each
// worker touches only its own slot.
func (c *Collection) process(ctx context.Context, i int, items []Item, dryRun bool, docs chan<- pending, p *progress) {
	it := &items[i]
	if err := ctx.Err(); err != nil {
		it.Status, it.Err = StatusFailed, err
		return
	}

	res := c.cfg.Screener.ScreenOne(ctx, it.Location)
	p.step(StageScreen, len(items), it.Location.URI())
	if res.Status != screener.StatusApproved {
		if ctx.Err() != nil {
			it.Status, it.Err = StatusFailed, ctx.Err()
			return
		}
		it.Status, it.Reason, it.Err = StatusRejected, res.Reason, res.Err
		return
	}
	it.FileID = res.Stamp.ID

	if _, ok := c.cfg.Indexers.Lookup(res.Stamp.Extension); !ok {
		it.Status, it.Reason = StatusSkipped, fmt.Sprintf("no indexer for %s", res.Stamp.Extension)
		return
	}
	if dryRun {
		it.Status = StatusDryRun
		return
	}

	doc, err := c.cfg.Indexers.Index(ctx, it.Location, res.Stamp)
	p.step(StageIndex, len(items), it.Location.URI())
	if err != nil {
		it.Status, it.Err = StatusFailed, amerrors.Wrap(amerrors.ErrCodeIndexFailed, err).
			WithDetail("uri", it.Location.URI())
		return
	}

	select {
	case docs <- pending{index: i, doc: doc}:
	case <-ctx.Done():
		it.Status, it.Err = StatusFailed, ctx.Err()
	}
}

// write is the only goroutine that touches the store. Documents are
// committed in transactions of up to batch upserts; a failing upsert marks
// only its own item, a failing commit marks the whole chunk.
func (c *Collection) write(ctx context.Context, docs <-chan pending, items []Item, batch int, p *progress) {
	buf := make([]pending, 0, batch)
	stored := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		failed := make(map[int]error)
		err := c.cfg.Store.Transaction(ctx, func(w storage.Writer) error {
			for _, pd := range buf {
				if err := w.Upsert(ctx, pd.doc); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failed[pd.index] = err
				}
			}
			return nil
		})
		for _, pd := range buf {
			it := &items[pd.index]
			switch {
			case err != nil:
				it.Status, it.Err = StatusFailed, err
			case failed[pd.index] != nil:
				it.Status, it.Err = StatusFailed, failed[pd.index]
			default:
				it.Status = StatusIndexed
				stored++
				p.emit(StageStore, stored, len(items), it.Location.URI())
			}
		}
		buf = buf[:0]
	}

	for pd := range docs {
		buf = append(buf, pd)
		if len(buf) >= batch {
			flush()
		}
	}
	flush()
}

type progress struct {
	mu       sync.Mutex
	fn       ProgressFunc
	name     string
	counters [4]atomic.Int64
}

func (c *Collection) newProgress(opts Options) *progress {
	return &progress{fn: opts.Progress, name: c.cfg.Name}
}

// step bumps the stage counter and emits it.
func (p *progress) step(stage Stage, total int, file string) {
	if p.fn == nil {
		return
	}
	n := p.counters[stage].Add(1)
	p.emit(stage, int(n), total, file)
}

func (p *progress) emit(stage Stage, current, total int, file string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(Progress{Collection: p.name, Stage: stage, Current: current, Total: total, File: file})
}
