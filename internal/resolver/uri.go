package resolver

import (
	"net/url"
	"strings"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
)

// Scheme is the URI scheme of index references.
const Scheme = "pkms"

// resourceFile is the only resource kind so far.
const resourceFile = "file"

// Selector names the column a pkms:// URI looks a file up by.
type Selector string

const (
	SelectorID     Selector = "id"
	SelectorUID    Selector = "uid"
	SelectorSHA256 Selector = "sha256"
)

func (s Selector) column() (string, bool) {
	switch s {
	case SelectorID:
		return "file_id", true
	case SelectorUID:
		return "file_uid", true
	case SelectorSHA256:
		return "file_hash_sha256", true
	default:
		return "", false
	}
}

// Reference is a parsed pkms://<authority>/file/<selector>:<value>.<ext>.
type Reference struct {
	// Authority is reserved and not used for lookups.
	Authority string
	Selector  Selector
	// Value is lower-cased.
	Value string
	// Extension includes the leading dot and is lower-cased.
	Extension string
}

// String renders the canonical URI for r.
func (r Reference) String() string {
	return Scheme + "://" + r.Authority + "/" + resourceFile + "/" +
		string(r.Selector) + ":" + r.Value + r.Extension
}

// FileRef returns the id reference for a stored file.
func FileRef(fileID, ext string) Reference {
	return Reference{
		Selector:  SelectorID,
		Value:     strings.ToLower(fileID),
		Extension: strings.ToLower(ext),
	}
}

// Parse validates raw against the pkms:// grammar.
func Parse(raw string) (Reference, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, amerrors.New(amerrors.ErrCodeInvalidURI, "cannot parse URI", err).
			WithDetail("uri", raw)
	}
	if u.Scheme != Scheme {
		return Reference{}, amerrors.Newf(amerrors.ErrCodeUnsupportedScheme,
			"unsupported URI scheme %q", u.Scheme).
			WithDetail("uri", raw).
			WithSuggestion("Use pkms://<authority>/file/id:<id>.<ext>")
	}

	malformed := func(format string, args ...any) error {
		return amerrors.Newf(amerrors.ErrCodeInvalidResourceURI, format, args...).
			WithDetail("uri", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return Reference{}, malformed("invalid pkms path %q", u.Path)
	}
	resource, selectorPart := parts[0], parts[1]
	if resource != resourceFile {
		return Reference{}, malformed("unsupported pkms resource %q", resource)
	}

	selector, rest, ok := strings.Cut(selectorPart, ":")
	if !ok {
		return Reference{}, malformed("missing selector in %q", selectorPart)
	}
	sel := Selector(selector)
	if _, known := sel.column(); !known {
		return Reference{}, malformed("unsupported selector %q", selector)
	}

	// Ids never contain dots, so the first dot starts the extension.
	value, ext, ok := strings.Cut(rest, ".")
	if !ok {
		return Reference{}, malformed("file extension is required in %q", rest)
	}
	if value == "" {
		return Reference{}, malformed("empty %s value", selector)
	}

	return Reference{
		Authority: u.Host,
		Selector:  sel,
		Value:     strings.ToLower(value),
		Extension: "." + strings.ToLower(ext),
	}, nil
}
