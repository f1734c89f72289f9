package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IndexStatus describes one index database.
type IndexStatus struct {
	Path    string    `json:"path"`
	Exists  bool      `json:"exists"`
	Records int       `json:"records"`
	Size    int64     `json:"size_bytes"`
	ModTime time.Time `json:"modified,omitzero"`
}

// CollectionStatus describes one configured collection.
type CollectionStatus struct {
	Name    string `json:"name"`
	Root    string `json:"root"`
	Storage string `json:"storage"`
}

// StatusInfo is the output of the status command.
type StatusInfo struct {
	Workspace   string             `json:"workspace"`
	Config      string             `json:"config"`
	Collections []CollectionStatus `json:"collections"`
	Indexes     []IndexStatus      `json:"indexes"`
}

// StatusRenderer displays workspace status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable status.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n", r.styles.Header.Render("Workspace: "+info.Workspace))
	_, _ = fmt.Fprintf(r.out, "  Config: %s\n\n", info.Config)

	_, _ = fmt.Fprintln(r.out, "  Collections:")
	if len(info.Collections) == 0 {
		_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render("(none configured)"))
	}
	for _, c := range info.Collections {
		_, _ = fmt.Fprintf(r.out, "    %-16s %s\n", c.Name, c.Root)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Indexes:")
	for _, ix := range info.Indexes {
		if !ix.Exists {
			_, _ = fmt.Fprintf(r.out, "    %s %s\n", ix.Path, r.styles.Warning.Render("(not created yet)"))
			continue
		}
		_, _ = fmt.Fprintf(r.out, "    %s\n", ix.Path)
		_, _ = fmt.Fprintf(r.out, "      Records: %d\n", ix.Records)
		_, _ = fmt.Fprintf(r.out, "      Size:    %s\n", FormatBytes(ix.Size))
		if !ix.ModTime.IsZero() {
			_, _ = fmt.Fprintf(r.out, "      Updated: %s\n", formatTime(ix.ModTime))
		}
	}
	return nil
}

// RenderJSON writes the status as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a size with binary units.
func FormatBytes(n int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1f GB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1f MB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1f KB", float64(n)/KB)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
