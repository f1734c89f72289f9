package indexer

import (
	"context"
	"strings"

	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/screener"
)

// TextIndexer indexes plain text and Markdown as-is.
type TextIndexer struct{}

// Index uses the whole body as text. When the file name carries no title,
// the first Markdown heading or the first non-blank line is used.
func (TextIndexer) Index(ctx context.Context, loc location.FileLocation, stamp *screener.FileStamp) (*Document, error) {
	body, err := readFile(ctx, loc)
	if err != nil {
		return nil, err
	}
	doc := NewDocument(loc, stamp)
	doc.Text = body
	if doc.Title == "" {
		doc.Title = firstLineTitle(body)
	}
	return doc, nil
}

func firstLineTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "---" {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	return ""
}
