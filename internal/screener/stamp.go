package screener

import (
	"slices"
	"strings"
	"time"

	"github.com/pkms-dev/pkms/internal/location"
)

// Kind tells whether a file is an immutable capture or a living document.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindEditable Kind = "editable"
)

// FileStamp is the identity and metadata captured when a file is admitted.
type FileStamp struct {
	ID         string            `json:"id"`
	UID        string            `json:"uid,omitempty"`
	Extension  string            `json:"extension"`
	Kind       Kind              `json:"kind"`
	Title      string            `json:"title"`
	Importance int               `json:"importance"`
	Context    string            `json:"context,omitempty"`
	Size       int64             `json:"size"`
	Created    time.Time         `json:"created"`
	Modified   time.Time         `json:"modified"`
	SHA256     string            `json:"sha256"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Status is a screening decision.
type Status int

const (
	StatusApproved Status = iota
	StatusRejected
	// StatusEscalated is reserved for decisions needing a human; it is
	// never produced.
	StatusEscalated
)

func (s Status) String() string {
	switch s {
	case StatusApproved:
		return "APPROVED"
	case StatusRejected:
		return "REJECTED"
	case StatusEscalated:
		return "ESCALATED"
	default:
		return "UNKNOWN"
	}
}

// Result is the screening outcome for one candidate.
type Result struct {
	Location location.FileLocation
	Status   Status
	Stamp    *FileStamp
	// Reason is diagnostic text for REJECTED results.
	Reason string
	Err    error
}

func kindFor(ext string, editable []string) Kind {
	if ext == "" {
		return KindSnapshot
	}
	for {
		if slices.Contains(editable, ext) {
			return KindEditable
		}
		i := strings.Index(ext[1:], ".")
		if i < 0 {
			return KindSnapshot
		}
		ext = ext[i+1:]
	}
}
