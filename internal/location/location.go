package location

import (
	"net/url"
	"strings"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
)

// SchemeFile is the scheme of locations parsed from filesystem paths.
const SchemeFile = "file"

// FileLocation names a file as base segments plus sub segments under a
// scheme and an optional authority. A nil authority differs from "".
type FileLocation struct {
	scheme    string
	authority *string
	base      Segments
	sub       Segments
}

// New builds a FileLocation. The authority pointer is copied.
func New(scheme string, authority *string, base, sub Segments) FileLocation {
	return FileLocation{
		scheme:    scheme,
		authority: cloneAuthority(authority),
		base:      base,
		sub:       sub,
	}
}

// Authority is a convenience for building non-nil authorities.
func Authority(s string) *string { return &s }

func cloneAuthority(a *string) *string {
	if a == nil {
		return nil
	}
	v := *a
	return &v
}

func (l FileLocation) Scheme() string { return l.scheme }

// Authority returns the authority and whether it is present at all.
func (l FileLocation) Authority() (string, bool) {
	if l.authority == nil {
		return "", false
	}
	return *l.authority, true
}

func (l FileLocation) Base() Segments { return l.base }
func (l FileLocation) Sub() Segments  { return l.sub }

// Segments is the joined path: sub replaces base when sub is absolute.
func (l FileLocation) Segments() Segments { return Join(l.base, l.sub) }

// SameOrigin reports whether scheme and authority match.
func (l FileLocation) SameOrigin(o FileLocation) bool {
	if l.scheme != o.scheme {
		return false
	}
	if (l.authority == nil) != (o.authority == nil) {
		return false
	}
	return l.authority == nil || *l.authority == *o.authority
}

// Equal compares all four components.
func (l FileLocation) Equal(o FileLocation) bool {
	return l.SameOrigin(o) && l.base.Equal(o.base) && l.sub.Equal(o.sub)
}

// BaseLocation drops the sub segments.
func (l FileLocation) BaseLocation() FileLocation {
	return FileLocation{scheme: l.scheme, authority: l.authority, base: l.base}
}

// SubLocation drops the base segments.
func (l FileLocation) SubLocation() FileLocation {
	return FileLocation{scheme: l.scheme, authority: l.authority, sub: l.sub}
}

// WithSub keeps the origin and base and replaces the sub segments.
func (l FileLocation) WithSub(sub Segments) FileLocation {
	return FileLocation{scheme: l.scheme, authority: l.authority, base: l.base, sub: sub}
}

// Rebase splits the joined path at base. The result has the given base
// and a relative sub when base is a prefix, otherwise an absolute sub.
func (l FileLocation) Rebase(base Segments) (FileLocation, error) {
	if !base.IsAbsolute() {
		return FileLocation{}, amerrors.New(amerrors.ErrCodeInvalidPath,
			"base path must be absolute", nil)
	}
	full := l.Segments()
	out := FileLocation{scheme: l.scheme, authority: l.authority, base: base, sub: full}
	if rest, ok := full.TrimPrefix(base); ok {
		out.sub = rest
	}
	return out, nil
}

// URI renders scheme, authority and the percent-encoded joined path.
func (l FileLocation) URI() string {
	return l.render(l.Segments())
}

// BaseURI renders only the base segments.
func (l FileLocation) BaseURI() string { return l.render(l.base) }

// SubURI renders only the sub segments.
func (l FileLocation) SubURI() string { return l.render(l.sub) }

func (l FileLocation) String() string { return l.URI() }

// render writes "//authority" only before an absolute or empty path. A
// relative path follows the scheme directly, so its first segment is never
// read back as a host.
func (l FileLocation) render(s Segments) string {
	var sb strings.Builder
	sb.WriteString(l.scheme)
	sb.WriteByte(':')
	if l.authority != nil && (s.IsAbsolute() || s.Len() == 0) {
		sb.WriteString("//")
		sb.WriteString(*l.authority)
	}
	sb.WriteString(URIPath(s))
	return sb.String()
}

// URIPath percent-encodes each segment and joins them with "/".
func URIPath(s Segments) string {
	escaped := make([]string, len(s.elems))
	for i, e := range s.elems {
		escaped[i] = url.PathEscape(e)
	}
	p := strings.Join(escaped, "/")
	if s.absolute {
		return "/" + p
	}
	return p
}

// ParseURIPath splits an escaped URI path on "/" and decodes each segment.
func ParseURIPath(p string) (Segments, error) {
	var s Segments
	if p == "" {
		return s, nil
	}
	if strings.HasPrefix(p, "/") {
		s.absolute = true
		p = p[1:]
		if p == "" {
			return s, nil
		}
	}
	for _, raw := range strings.Split(p, "/") {
		dec, err := url.PathUnescape(raw)
		if err != nil {
			return Segments{}, amerrors.New(amerrors.ErrCodeInvalidURI,
				"invalid percent-encoding in path segment "+raw, err)
		}
		s.elems = append(s.elems, dec)
	}
	return s, nil
}

// FromURI parses an absolute URI. The whole path becomes the sub
// segments; base is left empty.
func FromURI(raw string) (FileLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return FileLocation{}, amerrors.New(amerrors.ErrCodeInvalidURI, "cannot parse URI "+raw, err)
	}
	if u.Scheme == "" {
		return FileLocation{}, amerrors.Newf(amerrors.ErrCodeInvalidURI, "URI has no scheme: %s", raw)
	}

	loc := FileLocation{scheme: u.Scheme}
	rest := raw[len(u.Scheme)+1:]
	if strings.HasPrefix(rest, "//") {
		host := u.Host
		if u.User != nil {
			host = u.User.String() + "@" + host
		}
		loc.authority = &host
	}

	p := u.EscapedPath()
	if u.Opaque != "" {
		p = u.Opaque
	}
	loc.sub, err = ParseURIPath(p)
	if err != nil {
		return FileLocation{}, err
	}
	return loc, nil
}

// FromURIWithBase parses raw and splits it at base, which must be
// absolute. When base is not a prefix of the path, sub holds the full
// absolute path and the joined segments are unchanged.
func FromURIWithBase(raw string, base Segments) (FileLocation, error) {
	if !base.IsAbsolute() {
		return FileLocation{}, amerrors.New(amerrors.ErrCodeInvalidPath,
			"base path must be absolute", nil)
	}
	loc, err := FromURI(raw)
	if err != nil {
		return FileLocation{}, err
	}
	return loc.Rebase(base)
}
