package indexer

import (
	"time"

	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/screener"
)

// Document is the normalized, format-independent output of an indexer.
// It is built once per ingest attempt and handed to storage unchanged.
type Document struct {
	FileID        string         `json:"file_id"`
	FileUID       string         `json:"file_uid,omitempty"`
	FileURI       string         `json:"file_uri"`
	FileSize      int64          `json:"file_size"`
	FileSHA256    string         `json:"file_hash_sha256"`
	FileExtension string         `json:"file_extension"`
	FileKind      screener.Kind  `json:"file_kind"`
	Title         string         `json:"title"`
	Importance    int            `json:"importance"`
	OriginURI     string         `json:"origin_uri,omitempty"`
	Text          string         `json:"text,omitempty"`
	Extra         map[string]any `json:"extra"`
	FileCreated   time.Time      `json:"file_created_datetime"`
	FileModified  time.Time      `json:"file_modified_datetime"`
}

// NewDocument fills the identity fields every indexer copies from the
// stamp. Indexers then add text, title overrides and extra metadata.
func NewDocument(loc location.FileLocation, stamp *screener.FileStamp) *Document {
	extra := map[string]any{}
	if stamp.Context != "" {
		extra["context"] = stamp.Context
	}
	return &Document{
		FileID:        stamp.ID,
		FileUID:       stamp.UID,
		FileURI:       loc.URI(),
		FileSize:      stamp.Size,
		FileSHA256:    stamp.SHA256,
		FileExtension: stamp.Extension,
		FileKind:      stamp.Kind,
		Title:         stamp.Title,
		Importance:    stamp.Importance,
		Extra:         extra,
		FileCreated:   stamp.Created,
		FileModified:  stamp.Modified,
	}
}
