package search

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/storage"
)

// DefaultMaxLimit caps Arguments.Limit when no maximum is configured.
const DefaultMaxLimit = 50

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

const searchSQL = `
SELECT
	files.file_id,
	files.file_extension,
	files.title,
	files.file_uri,
	files.origin_uri,
	bm25(files_fts) AS rank,
	snippet(files_fts, 1, '<mark>', '</mark>', '…', 20) AS snippet
FROM files_fts
JOIN files ON files.id = files_fts.rowid
WHERE files_fts MATCH ?
ORDER BY rank
LIMIT ? OFFSET ?
`

// Engine runs ranked full-text queries against an index.
type Engine struct {
	reader   *storage.Reader
	maxLimit int
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithMaxLimit sets the largest page size a caller may ask for.
// Values below one keep the default.
func WithMaxLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxLimit = n
		}
	}
}

// NewEngine creates a search engine over reader.
func NewEngine(reader *storage.Reader, opts ...EngineOption) (*Engine, error) {
	if reader == nil {
		return nil, ErrNilDependency
	}
	e := &Engine{reader: reader, maxLimit: DefaultMaxLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MaxLimit returns the configured page-size cap.
func (e *Engine) MaxLimit() int { return e.maxLimit }

// Search compiles args.Query and returns one page of hits, best first.
// All rows come from a single read transaction.
func (e *Engine) Search(ctx context.Context, args Arguments) (*Result, error) {
	start := time.Now()

	limit := args.Limit
	if limit <= 0 || limit > e.maxLimit {
		limit = e.maxLimit
	}
	offset := max(args.Offset, 0)

	result := &Result{
		Query:  args.Query,
		Limit:  limit,
		Offset: offset,
		Hits:   []Hit{},
	}

	match, ok := matchExpression(ParseQuery(args.Query))
	if !ok {
		return result, nil
	}

	err := e.reader.View(ctx, func(q storage.Querier) error {
		rows, err := q.QueryContext(ctx, searchSQL, match, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				h               Hit
				origin, snippet sql.NullString
				rank            float64
			)
			if err := rows.Scan(&h.FileID, &h.FileExtension, &h.Title, &h.URI, &origin, &rank, &snippet); err != nil {
				return err
			}
			h.OriginURI = origin.String
			h.Snippet = snippet.String
			// bm25() is lower-is-better; flip it so callers see higher-is-better.
			h.Score = -rank
			result.Hits = append(result.Hits, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "search failed", err).
			WithDetail("query", args.Query).
			WithDetail("match", match)
	}

	slog.Debug("search_completed",
		slog.String("query", args.Query),
		slog.Int("limit", limit),
		slog.Int("offset", offset),
		slog.Int("hits", len(result.Hits)),
		slog.Duration("latency", time.Since(start)))

	return result, nil
}
