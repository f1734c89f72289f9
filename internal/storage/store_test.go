package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/indexer"
	"github.com/pkms-dev/pkms/internal/screener"
)

// fakeClock returns a clock that advances one second per call.
func fakeClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(time.Second)
		return t
	}
}

func testDoc(id, title, text string) *indexer.Document {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &indexer.Document{
		FileID:        id,
		FileURI:       "file:///notes/" + id + ".md",
		FileSize:      int64(len(text)),
		FileSHA256:    "sha-" + id,
		FileExtension: ".md",
		FileKind:      screener.KindEditable,
		Title:         title,
		Text:          text,
		Extra:         map[string]any{"context": "ctx-" + id},
		FileCreated:   ts,
		FileModified:  ts,
	}
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Clock: fakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Upsert_InsertsRecord(t *testing.T) {
	// Given: an empty store
	s := openMemory(t)
	ctx := context.Background()

	// When: upserting a document
	require.NoError(t, s.Upsert(ctx, testDoc("20240301", "Weekly notes", "groceries and errands")))

	// Then: the record is readable with every column mapped back
	rec, err := s.Get(ctx, "20240301")
	require.NoError(t, err)
	assert.Equal(t, "Weekly notes", rec.Title)
	assert.Equal(t, ".md", rec.FileExtension)
	assert.Equal(t, "editable", rec.FileKind)
	assert.Equal(t, "groceries and errands", rec.Text)
	assert.Equal(t, "ctx-20240301", rec.Extra["context"])
	assert.Empty(t, rec.FileUID)
	assert.Equal(t, rec.RecordCreated, rec.RecordUpdated)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_Upsert_IdempotentKeepsCreated(t *testing.T) {
	// Given: a record inserted once
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, testDoc("a1", "First", "alpha")))
	first, err := s.Get(ctx, "a1")
	require.NoError(t, err)

	// When: the same file_id is upserted again with new content
	require.NoError(t, s.Upsert(ctx, testDoc("a1", "Second", "beta")))

	// Then: one row, new content, created unchanged, updated advanced
	second, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Second", second.Title)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.RecordCreated, second.RecordCreated)
	assert.True(t, second.RecordUpdated.After(first.RecordUpdated))
}

func TestStore_Upsert_KeepsFTSInStep(t *testing.T) {
	// Given: a record whose text is later replaced
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, testDoc("b1", "Doc", "pineapple")))
	require.NoError(t, s.Upsert(ctx, testDoc("b1", "Doc", "mango")))

	count := func(term string) int {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM files_fts WHERE files_fts MATCH ?", term).Scan(&n)
		require.NoError(t, err)
		return n
	}

	// Then: the shadow index only knows the current text
	assert.Equal(t, 0, count(`"pineapple"`))
	assert.Equal(t, 1, count(`"mango"`))
}

func TestStore_Upsert_RejectsDocumentWithoutID(t *testing.T) {
	s := openMemory(t)
	err := s.Upsert(context.Background(), &indexer.Document{})
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
}

func TestStore_Transaction(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name      string
		fn        func(w Writer) error
		wantErr   error
		wantCount int
	}{
		{
			name: "commits on success",
			fn: func(w Writer) error {
				for _, id := range []string{"t1", "t2", "t3"} {
					if err := w.Upsert(ctx, testDoc(id, id, "body")); err != nil {
						return err
					}
				}
				return nil
			},
			wantCount: 3,
		},
		{
			name: "rolls back every upsert on error",
			fn: func(w Writer) error {
				for _, id := range []string{"t1", "t2", "t3"} {
					if err := w.Upsert(ctx, testDoc(id, id, "body")); err != nil {
						return err
					}
				}
				return boom
			},
			wantErr:   boom,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an empty store
			s := openMemory(t)

			// When: running the transaction
			err := s.Transaction(ctx, tt.fn)

			// Then: error and row count match
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, n)
		})
	}
}

func TestStore_Transaction_PanicRollsBackAndRepanics(t *testing.T) {
	// Given: a transaction that writes then panics
	s := openMemory(t)
	ctx := context.Background()

	// When/Then: the panic escapes
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = s.Transaction(ctx, func(w Writer) error {
			require.NoError(t, w.Upsert(ctx, testDoc("p1", "p", "x")))
			panic("kaboom")
		})
	})

	// And: nothing was committed and the store is still usable
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, s.Upsert(ctx, testDoc("p2", "p", "x")))
}

func TestStore_Transaction_NestedFails(t *testing.T) {
	// Given: an open transaction
	s := openMemory(t)
	ctx := context.Background()

	var nestedErr, upsertErr error
	err := s.Transaction(ctx, func(w Writer) error {
		// When: opening another one, or bypassing the writer
		nestedErr = s.Transaction(ctx, func(Writer) error { return nil })
		upsertErr = s.Upsert(ctx, testDoc("n1", "n", "x"))
		return nil
	})

	// Then: both are refused and the outer transaction still commits
	require.NoError(t, err)
	assert.Equal(t, amerrors.ErrCodeNestedTransaction, amerrors.GetCode(nestedErr))
	assert.Equal(t, amerrors.ErrCodeNestedTransaction, amerrors.GetCode(upsertErr))
}

func TestStore_Transaction_ConcurrentCallerFails(t *testing.T) {
	// Given: a transaction held open by one goroutine
	s := openMemory(t)
	ctx := context.Background()

	var otherErr error
	err := s.Transaction(ctx, func(w Writer) error {
		// When: another goroutine starts its own transaction
		done := make(chan struct{})
		go func() {
			defer close(done)
			otherErr = s.Transaction(ctx, func(Writer) error { return nil })
		}()
		<-done
		return w.Upsert(ctx, testDoc("c1", "c", "x"))
	})

	// Then: the second caller is refused without queueing, and the store
	// accepts a new transaction once the first commits
	require.NoError(t, err)
	assert.Equal(t, amerrors.ErrCodeNestedTransaction, amerrors.GetCode(otherErr))
	assert.Contains(t, otherErr.Error(), "already open")
	require.NoError(t, s.Transaction(ctx, func(w Writer) error {
		return w.Upsert(ctx, testDoc("c2", "c", "y"))
	}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_WriterAfterTransactionFails(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	var leaked Writer
	require.NoError(t, s.Transaction(ctx, func(w Writer) error {
		leaked = w
		return nil
	}))

	assert.Error(t, leaked.Upsert(ctx, testDoc("l1", "l", "x")))
}

func TestStore_Close_Idempotent(t *testing.T) {
	// Given: an open store
	s, err := Open(context.Background(), Config{})
	require.NoError(t, err)

	// When: closing twice
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Then: every operation reports a closed store
	ctx := context.Background()
	assert.Equal(t, amerrors.ErrCodeStoreClosed, amerrors.GetCode(s.Upsert(ctx, testDoc("c1", "c", "x"))))
	assert.Equal(t, amerrors.ErrCodeStoreClosed,
		amerrors.GetCode(s.Transaction(ctx, func(Writer) error { return nil })))
	_, err = s.Count(ctx)
	assert.Equal(t, amerrors.ErrCodeStoreClosed, amerrors.GetCode(err))
	assert.True(t, amerrors.IsFatal(err))
}

func TestStore_Get_Missing(t *testing.T) {
	s := openMemory(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, amerrors.IsNotFound(err))
}

func TestStore_SecondWriterIsLocked(t *testing.T) {
	// Given: a file-backed store holding the writer lock
	path := filepath.Join(t.TempDir(), "index.db")
	first, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)

	// When: a second writer opens the same path
	_, err = Open(context.Background(), Config{Path: path})

	// Then: it is refused with a retryable error
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeWriterLocked, amerrors.GetCode(err))
	assert.True(t, amerrors.IsRetryable(err))

	// And: closing the first releases the lock
	require.NoError(t, first.Close())
	second, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a record written and the store closed
	path := filepath.Join(t.TempDir(), "sub", "index.db")
	ctx := context.Background()
	s, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, testDoc("r1", "Persisted", "kept")))
	require.NoError(t, s.Close())

	// When: reopening
	s, err = Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the record survived
	rec, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", rec.Title)
}
