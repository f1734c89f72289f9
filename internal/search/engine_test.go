package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/indexer"
	"github.com/pkms-dev/pkms/internal/screener"
	"github.com/pkms-dev/pkms/internal/storage"
)

func newTestEngine(t *testing.T, docs []*indexer.Document, opts ...EngineOption) *Engine {
	t.Helper()
	ctx := context.Background()

	st, err := storage.Open(ctx, storage.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Transaction(ctx, func(w storage.Writer) error {
		for _, d := range docs {
			if err := w.Upsert(ctx, d); err != nil {
				return err
			}
		}
		return nil
	}))

	e, err := NewEngine(st.Reader(), opts...)
	require.NoError(t, err)
	return e
}

func doc(id, title, text string) *indexer.Document {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &indexer.Document{
		FileID:        id,
		FileURI:       "file:///n/" + id + ".md",
		FileSHA256:    "h" + id,
		FileExtension: ".md",
		FileKind:      screener.KindEditable,
		Title:         title,
		Text:          text,
		FileCreated:   ts,
		FileModified:  ts,
	}
}

func TestEngine_Search_RanksAndHighlights(t *testing.T) {
	// Given: one document mentioning the term often and one once
	e := newTestEngine(t, []*indexer.Document{
		doc("a1", "Gardening", "tomato tomato tomato growing tips for tomato plants"),
		doc("b2", "Cooking", "a pasta recipe with one tomato and a lot of garlic and basil and olive oil"),
		doc("c3", "Unrelated", "bicycles"),
	})

	// When: searching for the term
	res, err := e.Search(context.Background(), Arguments{Query: "tomato", Limit: 10})
	require.NoError(t, err)

	// Then: both matches come back, denser first, higher score is better
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "a1", res.Hits[0].FileID)
	assert.Equal(t, "a1.md", res.Hits[0].Name())
	assert.Greater(t, res.Hits[0].Score, res.Hits[1].Score)
	assert.Contains(t, res.Hits[0].Snippet, "<mark>tomato</mark>")
	assert.Equal(t, "file:///n/a1.md", res.Hits[0].URI)
}

func TestEngine_Search_Negation(t *testing.T) {
	e := newTestEngine(t, []*indexer.Document{
		doc("a1", "One", "apple banana"),
		doc("b2", "Two", "apple cherry"),
	})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"excludes the negated word", "apple -banana", []string{"b2"}},
		{"negated phrase", `apple -"apple cherry"`, []string{"a1"}},
		{"several positives", "apple cherry -banana", []string{"b2"}},
		{"negation excludes everything", "apple -apple", nil},
		{"negation only matches nothing", "-banana", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: searching with a negated term
			res, err := e.Search(context.Background(), Arguments{Query: tt.query})

			// Then: the query runs and negated documents are dropped
			require.NoError(t, err)
			var got []string
			for _, h := range res.Hits {
				got = append(got, h.FileID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_Search_OperatorsAreLiteral(t *testing.T) {
	// Given: text that would be FTS syntax if passed through raw
	e := newTestEngine(t, []*indexer.Document{doc("a1", "Ops", "plain words here")})

	// When: the query is full of operators
	res, err := e.Search(context.Background(), Arguments{Query: `title:plain OR NEAR( "unbalanced`})

	// Then: it neither errors nor matches
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestEngine_Search_LimitAndOffset(t *testing.T) {
	var docs []*indexer.Document
	for i := range 60 {
		docs = append(docs, doc(fmt.Sprintf("d%02d", i), "Doc", "common term"))
	}
	e := newTestEngine(t, docs, WithMaxLimit(50))
	ctx := context.Background()

	tests := []struct {
		name       string
		args       Arguments
		wantLimit  int
		wantOffset int
		wantHits   int
	}{
		{"capped at max", Arguments{Query: "common", Limit: 999}, 50, 0, 50},
		{"zero means max", Arguments{Query: "common"}, 50, 0, 50},
		{"explicit small limit", Arguments{Query: "common", Limit: 5}, 5, 0, 5},
		{"offset pages", Arguments{Query: "common", Limit: 50, Offset: 40}, 50, 40, 20},
		{"negative offset clamps", Arguments{Query: "common", Limit: 3, Offset: -7}, 3, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Search(ctx, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, res.Limit)
			assert.Equal(t, tt.wantOffset, res.Offset)
			assert.Len(t, res.Hits, tt.wantHits)
			assert.Equal(t, tt.args.Query, res.Query)
		})
	}
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	e := newTestEngine(t, []*indexer.Document{doc("a1", "x", "y")})

	res, err := e.Search(context.Background(), Arguments{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestEngine_Search_ClosedStore(t *testing.T) {
	// Given: an engine whose store has gone away
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{})
	require.NoError(t, err)
	e, err := NewEngine(st.Reader())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// When/Then: search reports a coded failure
	_, err = e.Search(ctx, Arguments{Query: "x"})
	assert.Equal(t, amerrors.ErrCodeSearchFailed, amerrors.GetCode(err))
}

func TestNewEngine_NilReader(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}
