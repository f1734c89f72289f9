// Package indexer defines the contract that turns an admitted file into
// a normalized Document, plus the built-in text and HTML indexers.
//
// An indexer is a pure function of the file bytes and the stamp. It never
// touches storage.
package indexer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/screener"
)

// Indexer produces a Document for one file.
type Indexer interface {
	Index(ctx context.Context, loc location.FileLocation, stamp *screener.FileStamp) (*Document, error)
}

// Builtin returns a built-in indexer by name ("text" or "html").
func Builtin(name string) (Indexer, error) {
	switch strings.ToLower(name) {
	case "text", "txt", "markdown":
		return TextIndexer{}, nil
	case "html":
		return HTMLIndexer{}, nil
	}
	return nil, amerrors.Newf(amerrors.ErrCodeConfigInvalid, "unknown indexer %q", name)
}

// BuiltinNames lists the names Builtin accepts as canonical.
func BuiltinNames() []string { return []string{"html", "text"} }

// Registry maps file extensions to indexers.
type Registry struct {
	byExt    map[string]Indexer
	fallback Indexer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Indexer)}
}

// DefaultRegistry maps the common note and snapshot formats.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".html", HTMLIndexer{})
	r.Register(".htm", HTMLIndexer{})
	r.Register(".md", TextIndexer{})
	r.Register(".txt", TextIndexer{})
	return r
}

// Register maps ext (with or without the leading dot) to ix.
func (r *Registry) Register(ext string, ix Indexer) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.byExt[ext] = ix
}

// SetFallback sets the indexer used when no extension matches.
func (r *Registry) SetFallback(ix Indexer) { r.fallback = ix }

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Lookup tries ext, then each shorter dotted suffix (".sf.html" then
// ".html"), then the fallback.
func (r *Registry) Lookup(ext string) (Indexer, bool) {
	ext = strings.ToLower(ext)
	for ext != "" {
		if ix, ok := r.byExt[ext]; ok {
			return ix, true
		}
		i := strings.Index(ext[1:], ".")
		if i < 0 {
			break
		}
		ext = ext[i+1:]
	}
	return r.fallback, r.fallback != nil
}

// Index dispatches on the stamp's extension.
func (r *Registry) Index(ctx context.Context, loc location.FileLocation, stamp *screener.FileStamp) (*Document, error) {
	ix, ok := r.Lookup(stamp.Extension)
	if !ok {
		return nil, amerrors.Newf(amerrors.ErrCodeIndexFailed, "no indexer for extension %q", stamp.Extension)
	}
	return ix.Index(ctx, loc, stamp)
}

// readFile loads the content of loc as valid UTF-8.
func readFile(ctx context.Context, loc location.FileLocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if auth, ok := loc.Authority(); loc.Scheme() != location.SchemeFile || !ok || auth != "" {
		return "", amerrors.Newf(amerrors.ErrCodeUnsupportedScheme, "cannot read %s", loc.URI())
	}
	path, err := loc.FilesystemPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeIndexFailed, fmt.Sprintf("cannot read %s", path), err)
	}
	s := string(data)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s, nil
}
