package collection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/globber"
	"github.com/pkms-dev/pkms/internal/indexer"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/screener"
	"github.com/pkms-dev/pkms/internal/storage"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func fsLoc(t *testing.T, p string) location.FileLocation {
	t.Helper()
	l, err := location.FromFilesystemPath(p, location.Native, location.FSOptions{Clean: true})
	require.NoError(t, err)
	return l
}

type fixture struct {
	dir   string
	store *storage.Store
	coll  *Collection
}

func newFixture(t *testing.T, patterns []string, store Store) *fixture {
	t.Helper()
	dir := t.TempDir()

	g, err := globber.New(globber.Config{Patterns: patterns})
	require.NoError(t, err)
	sc, err := screener.New(screener.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{dir: dir}
	if store == nil {
		st, err := storage.Open(context.Background(), storage.Config{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		f.store = st
		store = st
	}

	f.coll, err = New(Config{
		Name:     "notes",
		Root:     fsLoc(t, dir),
		Globber:  g,
		Screener: sc,
		Indexers: indexer.DefaultRegistry(),
		Store:    store,
	})
	require.NoError(t, err)
	return f
}

func statuses(r *Report) map[string]Status {
	out := map[string]Status{}
	for _, it := range r.Items {
		elems := it.Location.Segments().Elems()
		out[elems[len(elems)-1]] = it.Status
	}
	return out
}

func TestCollection_Ingest(t *testing.T) {
	// Given: a tree with valid notes, a bad filename and an unindexable type
	f := newFixture(t, []string{"*"}, nil)
	writeFiles(t, f.dir, map[string]string{
		"20240101 First.md":       "first body",
		"sub/20240102 Second.txt": "second body",
		"20240103 Third.md":       "third body",
		"README.md":               "no id",
		"20240104 Scan.bin":       "binary",
		"20240105 Page.html":      "<html><head><title>Page</title></head><body>hi</body></html>",
	})

	for _, workers := range []int{1, 4} {
		t.Run("workers", func(t *testing.T) {
			// When: ingesting the collection
			report, err := f.coll.Ingest(context.Background(), Options{Workers: workers})
			require.NoError(t, err)

			// Then: every file has an outcome and only indexed files are stored
			got := statuses(report)
			assert.Equal(t, StatusIndexed, got["20240101 First.md"])
			assert.Equal(t, StatusIndexed, got["20240102 Second.txt"])
			assert.Equal(t, StatusIndexed, got["20240103 Third.md"])
			assert.Equal(t, StatusIndexed, got["20240105 Page.html"])
			assert.Equal(t, StatusRejected, got["README.md"])
			assert.Equal(t, StatusSkipped, got["20240104 Scan.bin"])
			assert.Equal(t, 4, report.Succeeded)
			assert.Zero(t, report.Failed)
			assert.NotEmpty(t, report.RunID)
			assert.Equal(t, "notes", report.Collection)

			n, err := f.store.Count(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			rec, err := f.store.Get(context.Background(), "20240105")
			require.NoError(t, err)
			assert.Equal(t, "Page", rec.Title)
		})
	}
}

func TestCollection_Ingest_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, []string{"*.md"}, nil)
	writeFiles(t, f.dir, map[string]string{
		"20240101 A.md": "a",
		"bad.md":        "b",
	})

	report, err := f.coll.Ingest(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Count(StatusDryRun))
	assert.Equal(t, 1, report.Count(StatusRejected))
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollection_Ingest_MissingRoot(t *testing.T) {
	f := newFixture(t, []string{"*"}, nil)
	require.NoError(t, os.RemoveAll(f.dir))

	_, err := f.coll.Ingest(context.Background(), Options{})
	assert.Equal(t, amerrors.ErrCodeFileNotFound, amerrors.GetCode(err))
}

func TestCollection_IngestFiles_AppliesGlobberAndRoot(t *testing.T) {
	// Given: a collection selecting markdown only
	f := newFixture(t, []string{"*.md"}, nil)
	writeFiles(t, f.dir, map[string]string{
		"20240101 A.md":  "a",
		"20240102 B.txt": "b",
	})
	outside := filepath.Join(t.TempDir(), "20240103 C.md")
	writeFiles(t, filepath.Dir(outside), map[string]string{filepath.Base(outside): "c"})

	// When: ingesting explicit files
	report, err := f.coll.IngestFiles(context.Background(), []location.FileLocation{
		fsLoc(t, filepath.Join(f.dir, "20240101 A.md")),
		fsLoc(t, filepath.Join(f.dir, "20240102 B.txt")),
		fsLoc(t, outside),
	}, Options{})
	require.NoError(t, err)

	// Then: order is kept, unselected and foreign files are skipped
	require.Len(t, report.Items, 3)
	assert.Equal(t, StatusIndexed, report.Items[0].Status)
	assert.Equal(t, "20240101", report.Items[0].FileID)
	assert.Equal(t, StatusSkipped, report.Items[1].Status)
	assert.Equal(t, StatusSkipped, report.Items[2].Status)

	// And: the indexed item is anchored at the collection root
	assert.True(t, report.Items[0].Location.Base().Equal(f.coll.Root().Segments()))
}

// flakyStore fails upserts for one file id and records commits.
type flakyStore struct {
	inner   *storage.Store
	failID  string
	mu      sync.Mutex
	commits int
}

func (s *flakyStore) Transaction(ctx context.Context, fn func(storage.Writer) error) error {
	err := s.inner.Transaction(ctx, func(w storage.Writer) error {
		return fn(flakyWriter{w: w, failID: s.failID})
	})
	if err == nil {
		s.mu.Lock()
		s.commits++
		s.mu.Unlock()
	}
	return err
}

type flakyWriter struct {
	w      storage.Writer
	failID string
}

func (w flakyWriter) Upsert(ctx context.Context, doc *indexer.Document) error {
	if doc.FileID == w.failID {
		return amerrors.New(amerrors.ErrCodeUpsertFailed, "injected", errors.New("disk full"))
	}
	return w.w.Upsert(ctx, doc)
}

func TestCollection_Ingest_OneFailureDoesNotAbortBatch(t *testing.T) {
	// Given: a store that refuses one document
	inner, err := storage.Open(context.Background(), storage.Config{})
	require.NoError(t, err)
	defer func() { _ = inner.Close() }()
	store := &flakyStore{inner: inner, failID: "20240102"}

	f := newFixture(t, []string{"*.md"}, store)
	writeFiles(t, f.dir, map[string]string{
		"20240101 A.md": "a",
		"20240102 B.md": "b",
		"20240103 C.md": "c",
	})

	// When: ingesting with a batch size of two
	report, err := f.coll.Ingest(context.Background(), Options{BatchSize: 2})
	require.NoError(t, err)

	// Then: the other files are committed and the failure is reported
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, StatusFailed, report.Items[1].Status)
	assert.Equal(t, amerrors.ErrCodeUpsertFailed, amerrors.GetCode(report.Items[1].Err))
	assert.Equal(t, 2, store.commits)

	n, err := inner.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollection_Ingest_Cancelled(t *testing.T) {
	f := newFixture(t, []string{"*.md"}, nil)
	writeFiles(t, f.dir, map[string]string{"20240101 A.md": "a", "20240102 B.md": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coll.Ingest(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollection_Ingest_ReportsProgress(t *testing.T) {
	f := newFixture(t, []string{"*.md"}, nil)
	writeFiles(t, f.dir, map[string]string{"20240101 A.md": "a", "20240102 B.md": "b"})

	var events []Progress
	_, err := f.coll.Ingest(context.Background(), Options{
		Workers:  2,
		Progress: func(p Progress) { events = append(events, p) },
	})
	require.NoError(t, err)

	seen := map[Stage]int{}
	for _, e := range events {
		if e.Current > seen[e.Stage] {
			seen[e.Stage] = e.Current
		}
	}
	assert.Equal(t, 2, seen[StageDiscover])
	assert.Equal(t, 2, seen[StageScreen])
	assert.Equal(t, 2, seen[StageIndex])
	assert.Equal(t, 2, seen[StageStore])
	for _, e := range events {
		assert.Equal(t, f.coll.Name(), e.Collection)
	}
}

func TestNew_Validates(t *testing.T) {
	g, err := globber.New(globber.Config{})
	require.NoError(t, err)
	sc, err := screener.New(screener.DefaultConfig())
	require.NoError(t, err)

	_, err = New(Config{Root: fsLoc(t, t.TempDir()), Globber: g, Screener: sc, Indexers: indexer.DefaultRegistry()})
	assert.Error(t, err, "name is required")

	rel := location.New(location.SchemeFile, location.Authority(""), location.Segments{}, location.NewSegments(false, "rel"))
	_, err = New(Config{Name: "x", Root: rel, Globber: g, Screener: sc, Indexers: indexer.DefaultRegistry()})
	assert.Equal(t, amerrors.ErrCodeInvalidPath, amerrors.GetCode(err))

	_, err = New(Config{Name: "x", Root: fsLoc(t, t.TempDir())})
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
}
