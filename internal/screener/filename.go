package screener

import (
	"regexp"
	"strings"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
)

// filenamePattern reads "<id> [!...] <title> [{context}]<extension>".
// The extension is every trailing ".word" group, so "a.sf.html" keeps
// ".sf.html".
var filenamePattern = regexp.MustCompile(
	`^(\S*)\s+(!*)\s*([^{.]*)(?:\{([^}]*)\})?[\s\S]*?((?:\.[_a-zA-Z0-9]*)*)$`)

// Filename is the parsed form of a file name following the pkms naming
// convention.
type Filename struct {
	Name       string
	ID         string
	Importance int
	Title      string
	Context    string
	Extension  string
}

// ParseFilename parses a base name. The id and extension are lower-cased
// and both are required.
func ParseFilename(name string) (Filename, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Filename{}, amerrors.Newf(amerrors.ErrCodeInvalidFilename,
			"file name %q does not follow '<id> [!] <title> [{context}].<ext>'", name)
	}
	f := Filename{
		Name:       name,
		ID:         strings.ToLower(m[1]),
		Importance: len(m[2]),
		Title:      strings.TrimSpace(m[3]),
		Context:    strings.TrimSpace(m[4]),
		Extension:  strings.ToLower(m[5]),
	}
	if f.ID == "" {
		return Filename{}, amerrors.Newf(amerrors.ErrCodeInvalidFilename, "file name %q has no id prefix", name)
	}
	if f.Extension == "" || f.Extension == "." {
		return Filename{}, amerrors.Newf(amerrors.ErrCodeInvalidFilename, "file name %q has no extension", name)
	}
	return f, nil
}
