// Package output provides consistent CLI output: colored status lines,
// search hits, resolved targets and per-file ingest listings.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/pkms-dev/pkms/internal/collection"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/resolver"
	"github.com/pkms-dev/pkms/internal/search"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer

	ok    *color.Color
	warn  *color.Color
	fail  *color.Color
	faint *color.Color
	bold  *color.Color
}

// New creates a Writer. Colors are enabled only when useColor is true.
// Errors from writing are ignored for console output.
func New(out io.Writer, useColor bool) *Writer {
	w := &Writer{
		out:   out,
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed, color.Bold),
		faint: color.New(color.Faint),
		bold:  color.New(color.Bold),
	}
	for _, c := range []*color.Color{w.ok, w.warn, w.fail, w.faint, w.bold} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return w
}

// Status prints msg after an icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status(w.ok.Sprint("✓"), msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status(w.warn.Sprint("!"), msg) }

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status(w.fail.Sprint("✗"), msg) }

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Err prints err with its code and hint.
func (w *Writer) Err(err error) {
	if err == nil {
		return
	}
	lines := strings.Split(strings.TrimRight(amerrors.FormatForCLI(err), "\n"), "\n")
	w.Error(strings.TrimPrefix(lines[0], "Error: "))
	for _, l := range lines[1:] {
		_, _ = fmt.Fprintln(w.out, w.faint.Sprint(" "+l))
	}
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Hits prints a search result page, one block per hit.
func (w *Writer) Hits(res *search.Result) {
	if len(res.Hits) == 0 {
		w.Statusf("", "No matches for %q", res.Query)
		return
	}
	for i, h := range res.Hits {
		title := h.Title
		if title == "" {
			title = h.Name()
		}
		_, _ = fmt.Fprintf(w.out, "%s %s %s\n",
			w.faint.Sprintf("%2d.", res.Offset+i+1), w.bold.Sprint(title), w.faint.Sprintf("(%.2f)", h.Score))
		_, _ = fmt.Fprintf(w.out, "    %s\n", h.URI)
		_, _ = fmt.Fprintf(w.out, "    %s %s\n", w.faint.Sprint("ref:"), resolver.FileRef(h.FileID, h.FileExtension))
		if h.OriginURI != "" {
			_, _ = fmt.Fprintf(w.out, "    %s %s\n", w.faint.Sprint("origin:"), h.OriginURI)
		}
		if s := oneLine(h.Snippet); s != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", s)
		}
	}
}

// Target prints a resolved reference. path is the target rendered in
// the caller's path convention.
func (w *Writer) Target(t *resolver.Target, path string) {
	w.Successf("%s%s %s", t.FileID, t.FileExtension, w.faint.Sprintf("[%s]", t.Status))
	if t.Title != "" {
		w.Statusf("", "title: %s", t.Title)
	}
	w.Statusf("", "kind:  %s", t.FileKind)
	w.Statusf("", "path:  %s", path)
}

// Items lists the per-file outcome of an ingest run. Indexed items are
// listed only when verbose is set.
func (w *Writer) Items(report *collection.Report, verbose bool) {
	for _, it := range report.Items {
		uri := it.Location.URI()
		switch it.Status {
		case collection.StatusIndexed:
			if verbose {
				w.Status(w.ok.Sprint("+"), uri)
			}
		case collection.StatusDryRun:
			w.Status(w.ok.Sprint("~"), uri)
		case collection.StatusSkipped:
			if verbose {
				w.Status(w.faint.Sprint("-"), w.faint.Sprintf("%s (%s)", uri, it.Reason))
			}
		case collection.StatusRejected:
			w.Status(w.warn.Sprint("!"), fmt.Sprintf("%s: %s", uri, it.Reason))
		case collection.StatusFailed:
			w.Status(w.fail.Sprint("✗"), fmt.Sprintf("%s: %v", uri, it.Err))
		}
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
