package collection

import (
	"encoding/json"
	"time"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
)

// Status is the outcome of one file in an ingest run.
type Status string

const (
	StatusIndexed  Status = "INDEXED"
	StatusSkipped  Status = "SKIPPED"
	StatusRejected Status = "REJECTED"
	StatusFailed   Status = "FAILED"
	StatusDryRun   Status = "DRY_RUN"
)

// Item is the per-file outcome.
type Item struct {
	Location location.FileLocation
	Status   Status
	FileID   string
	// Reason explains SKIPPED and REJECTED items.
	Reason string
	Err    error
}

// MarshalJSON renders the location as its URI and the error as its code
// and message.
func (i Item) MarshalJSON() ([]byte, error) {
	out := struct {
		URI       string `json:"uri"`
		Status    Status `json:"status"`
		FileID    string `json:"file_id,omitempty"`
		Reason    string `json:"reason,omitempty"`
		ErrorCode string `json:"error_code,omitempty"`
		Error     string `json:"error,omitempty"`
	}{
		URI:    i.Location.URI(),
		Status: i.Status,
		FileID: i.FileID,
		Reason: i.Reason,
	}
	if i.Err != nil {
		out.ErrorCode = amerrors.GetCode(i.Err)
		out.Error = i.Err.Error()
	}
	return json.Marshal(out)
}

// Report aggregates one ingest run. Items keep the order files were
// discovered or passed in.
type Report struct {
	RunID      string        `json:"run_id"`
	Collection string        `json:"collection"`
	DryRun     bool          `json:"dry_run"`
	Items      []Item        `json:"items"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Count returns how many items ended in status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, it := range r.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

// tally recomputes Succeeded and Failed from the items.
func (r *Report) tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, it := range r.Items {
		switch it.Status {
		case StatusIndexed, StatusDryRun:
			r.Succeeded++
		case StatusFailed:
			r.Failed++
		}
	}
}
