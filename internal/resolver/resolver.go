package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/storage"
)

// Status is the lifecycle state of a resolved file. Only StatusOK is
// produced; the rest are reserved for tracking removed files.
type Status string

const (
	StatusOK      Status = "OK"
	StatusTrashed Status = "TRASHED"
	StatusDeleted Status = "DELETED"
	StatusAbsent  Status = "ABSENT"
)

// FileType distinguishes files from directories. Only regular files are
// indexed today.
type FileType string

const (
	FileTypeRegular   FileType = "REGULAR"
	FileTypeDirectory FileType = "DIRECTORY"
)

// Target is where a pkms:// reference points.
type Target struct {
	Status        Status                `json:"status"`
	FileID        string                `json:"file_id"`
	FileExtension string                `json:"file_extension"`
	FileKind      string                `json:"file_kind"`
	Title         string                `json:"title"`
	FileURI       string                `json:"file_uri"`
	FileType      FileType              `json:"file_type"`
	Location      location.FileLocation `json:"-"`
}

// Resolver maps pkms:// references to stored file locations.
type Resolver struct {
	reader *storage.Reader
}

// New creates a resolver over reader.
func New(reader *storage.Reader) (*Resolver, error) {
	if reader == nil {
		return nil, errors.New("nil reader")
	}
	return &Resolver{reader: reader}, nil
}

// Resolve parses uri and looks it up.
func (r *Resolver) Resolve(ctx context.Context, uri string) (*Target, error) {
	ref, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	return r.ResolveRef(ctx, ref)
}

// ResolveRef looks up an already parsed reference.
func (r *Resolver) ResolveRef(ctx context.Context, ref Reference) (*Target, error) {
	column, ok := ref.Selector.column()
	if !ok {
		return nil, amerrors.Newf(amerrors.ErrCodeInvalidResourceURI,
			"unsupported selector %q", ref.Selector)
	}

	query := fmt.Sprintf(`
SELECT file_id, file_extension, file_kind, title, file_uri
FROM files
WHERE %s = ? AND file_extension = ?
ORDER BY id
LIMIT 1`, column)

	t := &Target{Status: StatusOK, FileType: FileTypeRegular}
	err := r.reader.View(ctx, func(q storage.Querier) error {
		return q.QueryRowContext(ctx, query, ref.Value, ref.Extension).
			Scan(&t.FileID, &t.FileExtension, &t.FileKind, &t.Title, &t.FileURI)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, amerrors.NotFoundError(fmt.Sprintf("no file for %s", ref)).
			WithDetail("selector", string(ref.Selector)).
			WithDetail("value", ref.Value)
	}
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInternal, "resolve lookup failed", err).
			WithDetail("uri", ref.String())
	}

	loc, err := location.FromURI(t.FileURI)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInternal, "stored file_uri is invalid", err).
			WithDetail("file_id", t.FileID).
			WithDetail("file_uri", t.FileURI)
	}
	t.Location = loc

	slog.Debug("uri_resolved",
		slog.String("uri", ref.String()),
		slog.String("file_uri", t.FileURI))
	return t, nil
}
