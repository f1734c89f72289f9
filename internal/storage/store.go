package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/indexer"
)

// Config configures a Store.
type Config struct {
	// Path is the database file. Empty opens a private in-memory store.
	Path string
	// Clock supplies record timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Writer is the write surface handed to a Transaction callback.
type Writer interface {
	Upsert(ctx context.Context, doc *indexer.Document) error
}

// Store is the single-writer SQLite index. All upserts from a process go
// through one Store; other processes are kept out by the writer lock.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	lock   *WriterLock
	clock  func() time.Time
	closed bool
	inTx   bool
}

var _ Writer = (*Store)(nil)

// Open opens (creating if needed) the index at cfg.Path and takes the
// writer lock. A held lock yields ERR_207, which callers may retry.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Store{path: cfg.Path, clock: clock}

	dsn := ":memory:"
	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeFilePermission,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}

		lock := NewWriterLock(cfg.Path)
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeFilePermission, "failed to lock index", err).
				WithDetail("lock", lock.Path())
		}
		if !acquired {
			return nil, amerrors.Newf(amerrors.ErrCodeWriterLocked,
				"index %s is locked by another writer", cfg.Path).
				WithDetail("lock", lock.Path()).
				WithSuggestion("Wait for the running ingest or watch session to finish")
		}
		s.lock = lock

		if err := checkIntegrity(ctx, cfg.Path); err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		dsn = cfg.Path
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		s.releaseLock()
		return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "failed to open index", err).
			WithDetail("path", cfg.Path)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		s.releaseLock()
		return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "failed to initialize schema", err).
			WithDetail("path", cfg.Path)
	}
	s.db = db

	slog.Debug("store_opened", slog.String("path", cfg.Path))
	return s, nil
}

// openDB opens a single-connection pool with the package pragmas applied.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: pragmas stick and an in-memory database is not
	// silently duplicated per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	return db, nil
}

// checkIntegrity refuses to write into an existing database that fails
// SQLite's quick check.
func checkIntegrity(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeCorruptIndex, "cannot open index for validation", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return amerrors.New(amerrors.ErrCodeCorruptIndex, "integrity check failed", err).
			WithDetail("path", path).
			WithSuggestion("Delete the index file and run 'pkms ingest' again")
	}
	if result != "ok" {
		return amerrors.Newf(amerrors.ErrCodeCorruptIndex, "index corrupted: %s", result).
			WithDetail("path", path).
			WithSuggestion("Delete the index file and run 'pkms ingest' again")
	}
	return nil
}

// Path returns the database path ("" for in-memory).
func (s *Store) Path() string { return s.path }

// Upsert writes doc in its own implicit transaction. It fails with ERR_507
// while a Transaction is open; inside one, use the Writer passed to the
// callback instead.
func (s *Store) Upsert(ctx context.Context, doc *indexer.Document) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	if s.inTx {
		s.mu.Unlock()
		return amerrors.New(amerrors.ErrCodeNestedTransaction,
			"upsert on the store while a transaction is open; use the transaction writer", nil)
	}
	s.mu.Unlock()

	return s.upsert(ctx, s.db, doc)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsert(ctx context.Context, ex execer, doc *indexer.Document) error {
	if doc == nil || doc.FileID == "" {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "document has no file_id", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args, err := upsertArgs(doc, s.clock())
	if err != nil {
		return amerrors.New(amerrors.ErrCodeUpsertFailed, "failed to encode document", err).
			WithDetail("file_id", doc.FileID)
	}
	if _, err := ex.ExecContext(ctx, upsertSQL, args...); err != nil {
		return amerrors.New(amerrors.ErrCodeUpsertFailed, "failed to upsert document", err).
			WithDetail("file_id", doc.FileID)
	}
	return nil
}

// Transaction runs fn inside one write transaction. It commits when fn
// returns nil and rolls back on error or panic; a panic is re-raised after
// the rollback.
//
// A Store holds at most one open transaction. Any second Transaction or
// Upsert while one is open fails with ERR_507, whether it comes from fn
// itself or from another goroutine; the Store does not queue writers.
// Callers funnel writes through a single goroutine, as Collection does.
func (s *Store) Transaction(ctx context.Context, fn func(Writer) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	if s.inTx {
		s.mu.Unlock()
		return amerrors.New(amerrors.ErrCodeNestedTransaction,
			"a transaction is already open on this store", nil).
			WithSuggestion("Write through the Writer passed to the open transaction, from one goroutine")
	}
	s.inTx = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inTx = false
		s.mu.Unlock()
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeUpsertFailed, "failed to begin transaction", err)
	}

	w := &txWriter{store: s, tx: tx}
	committed := false
	defer func() {
		w.done = true
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(w); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return amerrors.New(amerrors.ErrCodeUpsertFailed, "failed to commit transaction", err)
	}
	committed = true
	return nil
}

type txWriter struct {
	store *Store
	tx    *sql.Tx
	done  bool
}

func (w *txWriter) Upsert(ctx context.Context, doc *indexer.Document) error {
	if w.done {
		return amerrors.New(amerrors.ErrCodeInternal, "writer used after its transaction ended", nil)
	}
	return w.store.upsert(ctx, w.tx, doc)
}

// Get returns the record for fileID, or ERR_601.
func (s *Store) Get(ctx context.Context, fileID string) (*Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(db.QueryRowContext(ctx, selectRecordSQL+" WHERE file_id = ?", fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, amerrors.NotFoundError(fmt.Sprintf("no record with file_id %q", fileID))
	}
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInternal, "failed to read record", err).
			WithDetail("file_id", fileID)
	}
	return rec, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n); err != nil {
		return 0, amerrors.New(amerrors.ErrCodeInternal, "failed to count records", err)
	}
	return n, nil
}

// Reader returns a read handle sharing this store's connection. It is how
// in-memory stores are searched; file-backed stores are usually read via
// OpenReader instead. Closing the returned Reader does not close the Store.
//
// The store has a single connection, so queries through this Reader wait
// until an open transaction finishes. Do not read through it from inside
// a Transaction callback; such a query waits until its context is done.
func (s *Store) Reader() *Reader {
	return &Reader{db: s.db, path: s.path, shared: true}
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed()
	}
	return s.db, nil
}

// Close checkpoints the WAL, closes the database and releases the writer
// lock. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.db != nil {
		if s.path != "" {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		err = s.db.Close()
	}
	s.releaseLock()

	slog.Debug("store_closed", slog.String("path", s.path))
	return err
}

func (s *Store) releaseLock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		slog.Warn("store_unlock_failed",
			slog.String("lock", s.lock.Path()),
			slog.String("error", err.Error()))
	}
}

func errClosed() error {
	return amerrors.New(amerrors.ErrCodeStoreClosed, "store is closed", nil)
}
