// Package location implements the path algebra pkms uses to name files
// consistently across mount points, URIs, and filesystem conventions.
//
// A path is a sequence of segments. A leading null token marks an
// absolute path; empty-string segments are significant and preserved.
package location

import (
	"slices"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
)

// Segments is an immutable, decoded path.
type Segments struct {
	absolute bool
	elems    []string
}

// NewSegments builds segments from plain strings.
func NewSegments(absolute bool, elems ...string) Segments {
	return Segments{absolute: absolute, elems: slices.Clone(elems)}
}

// FromTokens builds segments from a token list where nil is the absolute
// marker. A nil token at any index other than 0 is rejected.
func FromTokens(tokens []*string) (Segments, error) {
	var s Segments
	for i, tok := range tokens {
		if tok == nil {
			if i != 0 {
				return Segments{}, amerrors.Newf(amerrors.ErrCodeInvalidSegment,
					"null path segment at index %d", i)
			}
			s.absolute = true
			continue
		}
		s.elems = append(s.elems, *tok)
	}
	return s, nil
}

// Tokens returns the token form, with a leading nil for absolute paths.
func (s Segments) Tokens() []*string {
	out := make([]*string, 0, s.Len())
	if s.absolute {
		out = append(out, nil)
	}
	for i := range s.elems {
		e := s.elems[i]
		out = append(out, &e)
	}
	return out
}

// IsAbsolute reports whether the path starts with the absolute marker.
func (s Segments) IsAbsolute() bool { return s.absolute }

// Elems returns a copy of the string segments, without the marker.
func (s Segments) Elems() []string { return slices.Clone(s.elems) }

// Len counts tokens; the absolute marker counts as one.
func (s Segments) Len() int {
	if s.absolute {
		return len(s.elems) + 1
	}
	return len(s.elems)
}

// IsEmpty reports whether there are no tokens at all.
func (s Segments) IsEmpty() bool { return s.Len() == 0 }

// Equal compares token by token.
func (s Segments) Equal(o Segments) bool {
	return s.absolute == o.absolute && slices.Equal(s.elems, o.elems)
}

// HasPrefix reports whether p's tokens are a prefix of s's tokens.
func (s Segments) HasPrefix(p Segments) bool {
	if s.absolute != p.absolute && !p.IsEmpty() {
		return false
	}
	if len(p.elems) > len(s.elems) {
		return false
	}
	return slices.Equal(s.elems[:len(p.elems)], p.elems)
}

// TrimPrefix returns the relative remainder after p, if p is a prefix.
func (s Segments) TrimPrefix(p Segments) (Segments, bool) {
	if !s.HasPrefix(p) {
		return Segments{}, false
	}
	if p.IsEmpty() {
		return s, true
	}
	return Segments{elems: slices.Clone(s.elems[len(p.elems):])}, true
}

// Append returns s with elems added at the end.
func (s Segments) Append(elems ...string) Segments {
	out := make([]string, 0, len(s.elems)+len(elems))
	out = append(append(out, s.elems...), elems...)
	return Segments{absolute: s.absolute, elems: out}
}

// Join returns b if b is absolute, else a followed by b.
func Join(a, b Segments) Segments {
	if b.absolute {
		return b
	}
	return a.Append(b.elems...)
}
