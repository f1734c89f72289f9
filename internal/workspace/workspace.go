// Package workspace composes configured collections over shared stores and
// routes single-file ingests to the collection that owns them.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkms-dev/pkms/internal/collection"
	"github.com/pkms-dev/pkms/internal/config"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/globber"
	"github.com/pkms-dev/pkms/internal/indexer"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/resolver"
	"github.com/pkms-dev/pkms/internal/router"
	"github.com/pkms-dev/pkms/internal/screener"
	"github.com/pkms-dev/pkms/internal/search"
	"github.com/pkms-dev/pkms/internal/storage"
)

// Workspace is a loaded configuration with its components built.
// Stores open lazily: writers on the first ingest that needs them, the
// reader on the first search or resolve.
type Workspace struct {
	cfg         *config.Config
	collections []*collection.Collection
	router      *router.Router
	retry       amerrors.RetryConfig

	mu       sync.Mutex
	stores   map[string]*storage.Store
	reader   *storage.Reader
	engine   *search.Engine
	resolver *resolver.Resolver
	closed   bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithRetry sets the backoff used while another process holds a writer lock.
func WithRetry(cfg amerrors.RetryConfig) Option {
	return func(w *Workspace) { w.retry = cfg }
}

// New resolves every component reference and builds the collections.
// Named components are built once and shared by every collection that
// references them; storage components with equal paths share one Store.
func New(cfg *config.Config, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		cfg:    cfg,
		router: router.New(),
		retry:  amerrors.DefaultRetryConfig(),
		stores: make(map[string]*storage.Store),
	}
	for _, opt := range opts {
		opt(w)
	}

	b := &builder{
		cfg:       cfg,
		globbers:  make(map[string]*globber.Globber),
		screeners: make(map[string]*screener.Screener),
		indexers:  make(map[string]*indexer.Registry),
	}

	for _, cc := range cfg.Collections {
		coll, err := w.buildCollection(b, cc)
		if err != nil {
			return nil, err
		}
		w.collections = append(w.collections, coll)
		w.router.Add(coll.Root())
	}
	return w, nil
}

func (w *Workspace) buildCollection(b *builder, cc config.CollectionConfig) (*collection.Collection, error) {
	rootPath, err := w.cfg.ResolvePath(cc.Root)
	if err != nil {
		return nil, err
	}
	root, err := location.FromFilesystemPath(rootPath, location.Native,
		location.FSOptions{Absolutize: true, Clean: true})
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", cc.Name, err)
	}

	g, err := b.globber(cc)
	if err != nil {
		return nil, err
	}
	sc, err := b.screener(cc)
	if err != nil {
		return nil, err
	}
	ix, err := b.indexerRegistry(cc)
	if err != nil {
		return nil, err
	}
	st, err := w.cfg.CollectionStorage(cc)
	if err != nil {
		return nil, err
	}
	dbPath, err := w.cfg.ResolvePath(st.Path)
	if err != nil {
		return nil, err
	}

	return collection.New(collection.Config{
		Name:     cc.Name,
		Root:     root,
		Globber:  g,
		Screener: sc,
		Indexers: ix,
		Store:    &lazyStore{ws: w, path: dbPath},
		Workers:  cc.Workers,
	})
}

// builder memoizes named components during composition.
type builder struct {
	cfg       *config.Config
	globbers  map[string]*globber.Globber
	screeners map[string]*screener.Screener
	indexers  map[string]*indexer.Registry
}

// shared returns the memoized instance for a named reference, building it
// on first use. Inline values always get a fresh instance.
func shared[C, T any](cache map[string]T, ref config.Ref[C], cfg C, build func(C) (T, error)) (T, error) {
	if ref.Inline != nil {
		return build(cfg)
	}
	name := ref.Name
	if name == "" {
		name = config.DefaultComponent
	}
	if v, ok := cache[name]; ok {
		return v, nil
	}
	v, err := build(cfg)
	if err != nil {
		return v, err
	}
	cache[name] = v
	return v, nil
}

func (b *builder) globber(cc config.CollectionConfig) (*globber.Globber, error) {
	gc, err := b.cfg.CollectionGlobber(cc)
	if err != nil {
		return nil, err
	}
	return shared(b.globbers, cc.Globber, gc, globber.New)
}

func (b *builder) screener(cc config.CollectionConfig) (*screener.Screener, error) {
	sc, err := b.cfg.CollectionScreener(cc)
	if err != nil {
		return nil, err
	}
	return shared(b.screeners, cc.Screener, sc, screener.New)
}

func (b *builder) indexerRegistry(cc config.CollectionConfig) (*indexer.Registry, error) {
	ic, err := b.cfg.CollectionIndexers(cc)
	if err != nil {
		return nil, err
	}
	return shared(b.indexers, cc.Indexers, ic, config.IndexersConfig.Registry)
}

// Config returns the configuration the workspace was built from.
func (w *Workspace) Config() *config.Config { return w.cfg }

// Collections returns the collections in configuration order.
func (w *Workspace) Collections() []*collection.Collection {
	return append([]*collection.Collection(nil), w.collections...)
}

// Collection returns the named collection.
func (w *Workspace) Collection(name string) (*collection.Collection, bool) {
	for _, c := range w.collections {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Route returns the collection with the deepest root containing loc.
func (w *Workspace) Route(loc location.FileLocation) (*collection.Collection, bool) {
	i, ok := w.router.MatchIndex(loc)
	if !ok {
		return nil, false
	}
	return w.collections[i], true
}

// IngestWorkspace ingests every collection in order. A collection that
// cannot be walked does not stop the others; its error is joined into
// the returned error.
func (w *Workspace) IngestWorkspace(ctx context.Context, opts collection.Options) ([]*collection.Report, error) {
	var reports []*collection.Report
	var errs []error
	for _, c := range w.collections {
		report, err := c.Ingest(ctx, opts)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			if ctx.Err() != nil {
				return reports, ctx.Err()
			}
			slog.Error("collection_ingest_failed",
				append([]any{slog.String("collection", c.Name())}, amerrors.FormatForLog(err)...)...)
			errs = append(errs, fmt.Errorf("collection %s: %w", c.Name(), err))
		}
	}
	return reports, errors.Join(errs...)
}

// IngestCollection ingests the named collection.
func (w *Workspace) IngestCollection(ctx context.Context, name string, opts collection.Options) (*collection.Report, error) {
	c, ok := w.Collection(name)
	if !ok {
		return nil, amerrors.Newf(amerrors.ErrCodeNoMatchingCollection, "no collection named %q", name)
	}
	return c.Ingest(ctx, opts)
}

// IngestFile routes one file to its collection and ingests it.
func (w *Workspace) IngestFile(ctx context.Context, loc location.FileLocation, opts collection.Options) (*collection.Report, error) {
	return w.IngestFiles(ctx, []location.FileLocation{loc}, opts)
}

// IngestFiles routes each file to the collection with the deepest
// matching root and ingests the groups. Items keep input order; files no
// collection owns are SKIPPED with ERR_602.
func (w *Workspace) IngestFiles(ctx context.Context, locs []location.FileLocation, opts collection.Options) (*collection.Report, error) {
	start := time.Now()
	report := &collection.Report{
		RunID:  uuid.NewString(),
		DryRun: opts.DryRun,
		Items:  make([]collection.Item, len(locs)),
	}

	groups := make(map[int][]int)
	var order []int
	for i, loc := range locs {
		ci, ok := w.router.MatchIndex(loc)
		if !ok {
			report.Items[i] = collection.Item{
				Location: loc,
				Status:   collection.StatusSkipped,
				Reason:   "no collection contains this file",
				Err: amerrors.Newf(amerrors.ErrCodeNoMatchingCollection,
					"no collection contains %s", loc.URI()),
			}
			continue
		}
		if _, seen := groups[ci]; !seen {
			order = append(order, ci)
		}
		groups[ci] = append(groups[ci], i)
	}

	var errs []error
	for _, ci := range order {
		idx := groups[ci]
		batch := make([]location.FileLocation, len(idx))
		for j, i := range idx {
			batch[j] = locs[i]
		}
		sub, err := w.collections[ci].IngestFiles(ctx, batch, opts)
		if sub != nil {
			for j, i := range idx {
				report.Items[i] = sub.Items[j]
			}
		}
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	if len(order) == 1 {
		report.Collection = w.collections[order[0]].Name()
	}

	for _, it := range report.Items {
		switch it.Status {
		case collection.StatusIndexed, collection.StatusDryRun:
			report.Succeeded++
		case collection.StatusFailed:
			report.Failed++
		}
	}
	report.Duration = time.Since(start)
	return report, errors.Join(errs...)
}

// Search runs a query against the search storage.
func (w *Workspace) Search(ctx context.Context, args search.Arguments) (*search.Result, error) {
	if err := w.openRead(ctx); err != nil {
		return nil, err
	}
	return w.engine.Search(ctx, args)
}

// Resolve looks up a pkms:// URI against the search storage.
func (w *Workspace) Resolve(ctx context.Context, uri string) (*resolver.Target, error) {
	if err := w.openRead(ctx); err != nil {
		return nil, err
	}
	return w.resolver.Resolve(ctx, uri)
}

// SearchStoragePath returns the resolved path of the searched index.
func (w *Workspace) SearchStoragePath() (string, error) {
	st, err := w.cfg.SearchStorage()
	if err != nil {
		return "", err
	}
	return w.cfg.ResolvePath(st.Path)
}

func (w *Workspace) openRead(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return amerrors.New(amerrors.ErrCodeStoreClosed, "workspace is closed", nil)
	}
	if w.reader != nil {
		return nil
	}

	path, err := w.SearchStoragePath()
	if err != nil {
		return err
	}
	reader, err := storage.OpenReader(ctx, path)
	if err != nil {
		return err
	}
	engine, err := search.NewEngine(reader, search.WithMaxLimit(w.cfg.Search.MaxLimit))
	if err != nil {
		_ = reader.Close()
		return err
	}
	res, err := resolver.New(reader)
	if err != nil {
		_ = reader.Close()
		return err
	}
	w.reader, w.engine, w.resolver = reader, engine, res
	return nil
}

// writer returns the shared Store for path, opening it on first use and
// retrying while another process holds the writer lock.
func (w *Workspace) writer(ctx context.Context, path string) (*storage.Store, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, amerrors.New(amerrors.ErrCodeStoreClosed, "workspace is closed", nil)
	}
	if st, ok := w.stores[path]; ok {
		return st, nil
	}

	st, err := amerrors.RetryWithResult(ctx, w.retry, func() (*storage.Store, error) {
		return storage.Open(ctx, storage.Config{Path: path})
	})
	if err != nil {
		return nil, err
	}
	w.stores[path] = st
	return st, nil
}

// Close closes every open store and the reader.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.reader != nil {
		errs = append(errs, w.reader.Close())
	}
	for _, st := range w.stores {
		errs = append(errs, st.Close())
	}
	return errors.Join(errs...)
}

// lazyStore defers opening (and locking) a store until a collection first
// writes to it.
type lazyStore struct {
	ws   *Workspace
	path string
}

func (l *lazyStore) Transaction(ctx context.Context, fn func(storage.Writer) error) error {
	st, err := l.ws.writer(ctx, l.path)
	if err != nil {
		return err
	}
	return st.Transaction(ctx, fn)
}
