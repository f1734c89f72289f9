package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkms-dev/pkms/internal/indexer"
)

// Record is one row of the files table.
type Record struct {
	ID            int64
	FileID        string
	FileUID       string
	FileURI       string
	FileSize      int64
	FileSHA256    string
	FileExtension string
	FileKind      string
	Importance    int
	Title         string
	OriginURI     string
	RecordCreated time.Time
	RecordUpdated time.Time
	FileCreated   time.Time
	FileModified  time.Time
	Text          string
	Extra         map[string]any
}

// timeLayout is used for every *_datetime column.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// upsertArgs orders the document fields to match upsertSQL.
func upsertArgs(doc *indexer.Document, now time.Time) ([]any, error) {
	extra := doc.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extra for %s: %w", doc.FileID, err)
	}

	stamp := formatTime(now)
	return []any{
		doc.FileID,
		nullString(doc.FileUID),
		doc.FileURI,
		doc.FileSize,
		doc.FileSHA256,
		doc.FileExtension,
		string(doc.FileKind),
		doc.Importance,
		doc.Title,
		nullString(doc.OriginURI),
		stamp,
		stamp,
		formatTime(doc.FileCreated),
		formatTime(doc.FileModified),
		nullString(doc.Text),
		string(extraJSON),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var uid, origin, text, extra sql.NullString
	var recCreated, recUpdated, fCreated, fModified string
	err := row.Scan(
		&r.ID,
		&r.FileID,
		&uid,
		&r.FileURI,
		&r.FileSize,
		&r.FileSHA256,
		&r.FileExtension,
		&r.FileKind,
		&r.Importance,
		&r.Title,
		&origin,
		&recCreated,
		&recUpdated,
		&fCreated,
		&fModified,
		&text,
		&extra,
	)
	if err != nil {
		return nil, err
	}
	r.FileUID = uid.String
	r.OriginURI = origin.String
	r.Text = text.String

	for _, f := range []struct {
		src string
		dst *time.Time
	}{
		{recCreated, &r.RecordCreated},
		{recUpdated, &r.RecordUpdated},
		{fCreated, &r.FileCreated},
		{fModified, &r.FileModified},
	} {
		t, err := parseTime(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = t
	}

	r.Extra = map[string]any{}
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &r.Extra); err != nil {
			return nil, fmt.Errorf("bad extra for %s: %w", r.FileID, err)
		}
	}
	return &r, nil
}
