package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
)

// Querier is the read surface available inside View.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Reader is a read-only handle on an index. Under WAL it never blocks the
// writer and sees only committed data.
type Reader struct {
	db     *sql.DB
	path   string
	shared bool

	closeOnce sync.Once
	closeErr  error
}

// OpenReader opens the index at path for reading. It takes no lock, so any
// number of readers may run next to one writer. A missing file is ERR_208.
func OpenReader(ctx context.Context, path string) (*Reader, error) {
	if path == "" {
		return nil, amerrors.New(amerrors.ErrCodeIndexNotFound, "no index path configured", nil)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, amerrors.Newf(amerrors.ErrCodeIndexNotFound, "index not found at %s", path).
				WithSuggestion("Run 'pkms ingest' to build the index first")
		}
		return nil, amerrors.New(amerrors.ErrCodeFilePermission, "cannot access index", err).
			WithDetail("path", path)
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "failed to open index", err).
			WithDetail("path", path)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		_ = db.Close()
		return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "failed to open index read-only", err).
			WithDetail("path", path)
	}
	return &Reader{db: db, path: path}, nil
}

// Path returns the database path.
func (r *Reader) Path() string { return r.path }

// View runs fn inside a single read transaction so every statement fn
// issues sees the same snapshot.
func (r *Reader) View(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// Count returns the number of records.
func (r *Reader) Count(ctx context.Context) (int, error) {
	var n int
	err := r.View(ctx, func(q Querier) error {
		return q.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n)
	})
	if err != nil {
		return 0, amerrors.New(amerrors.ErrCodeInternal, "failed to count records", err)
	}
	return n, nil
}

// Close releases the handle. Readers obtained from Store.Reader leave the
// store open.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		if !r.shared {
			r.closeErr = r.db.Close()
		}
	})
	return r.closeErr
}
