package location

import (
	"os"
	"runtime"
	"strings"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
)

// Convention selects how filesystem paths are parsed and rendered.
type Convention int

const (
	Posix Convention = iota
	Windows
)

// Native is the convention of the running platform.
var Native = func() Convention {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return Posix
}()

func (c Convention) String() string {
	if c == Windows {
		return "windows"
	}
	return "posix"
}

// ParseConvention accepts "posix", "windows" or "native".
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(s) {
	case "posix":
		return Posix, nil
	case "windows":
		return Windows, nil
	case "", "native":
		return Native, nil
	}
	return Posix, amerrors.Newf(amerrors.ErrCodeInvalidInput, "unknown path convention %q", s)
}

// FSOptions controls FromFilesystemPath.
type FSOptions struct {
	// Absolutize joins a relative path onto WorkingDir.
	Absolutize bool
	// WorkingDir defaults to os.Getwd().
	WorkingDir string
	// Clean drops "." and empty segments and resolves "..".
	Clean bool
}

// FromFilesystemPath parses p under conv. The resulting location has
// scheme "file", authority "" (or the UNC server), and p as its base.
func FromFilesystemPath(p string, conv Convention, opts FSOptions) (FileLocation, error) {
	authority, segs, err := parseFS(p, conv)
	if err != nil {
		return FileLocation{}, err
	}

	if opts.Absolutize && !segs.IsAbsolute() {
		wd := opts.WorkingDir
		if wd == "" {
			if wd, err = os.Getwd(); err != nil {
				return FileLocation{}, amerrors.New(amerrors.ErrCodeInvalidPath, "cannot determine working directory", err)
			}
		}
		wdAuth, wdSegs, err := parseFS(wd, conv)
		if err != nil {
			return FileLocation{}, err
		}
		if !wdSegs.IsAbsolute() {
			return FileLocation{}, amerrors.Newf(amerrors.ErrCodeInvalidPath, "working directory %q is not absolute", wd)
		}
		authority = wdAuth
		segs = Join(wdSegs, segs)
	}

	if opts.Clean {
		segs = clean(segs, conv)
	}
	return FileLocation{scheme: SchemeFile, authority: &authority, base: segs}, nil
}

// Normalize is the canonical filesystem spelling of p under conv:
// parse then render, without cleaning.
func Normalize(p string, conv Convention) (string, error) {
	loc, err := FromFilesystemPath(p, conv, FSOptions{})
	if err != nil {
		return "", err
	}
	return loc.ToFilesystemPath(conv)
}

func parseFS(p string, conv Convention) (string, Segments, error) {
	if p == "" {
		return "", Segments{}, amerrors.New(amerrors.ErrCodeInvalidPath, "empty path", nil)
	}
	if conv == Windows {
		return parseWindows(p)
	}
	return "", splitFS(p, "/"), nil
}

// splitFS collapses a leading separator run into one absolute marker and
// keeps all other empty segments, including a trailing one.
func splitFS(p, sep string) Segments {
	var s Segments
	if strings.HasPrefix(p, sep) {
		s.absolute = true
		p = strings.TrimLeft(p, sep)
	}
	if p != "" {
		s.elems = strings.Split(p, sep)
	}
	return s
}

func isDrive(s string) bool {
	return len(s) == 2 && s[1] == ':' &&
		(('a' <= s[0] && s[0] <= 'z') || ('A' <= s[0] && s[0] <= 'Z'))
}

func parseWindows(p string) (string, Segments, error) {
	p = strings.ReplaceAll(p, "/", `\`)

	if strings.HasPrefix(p, `\\`) {
		rest := p[2:]
		server, tail, _ := strings.Cut(rest, `\`)
		if server == "" {
			return "", Segments{}, amerrors.Newf(amerrors.ErrCodeInvalidPath, "UNC path %q has no server", p)
		}
		s := Segments{absolute: true}
		if tail != "" {
			s.elems = strings.Split(tail, `\`)
		}
		return server, s, nil
	}

	if len(p) >= 2 && isDrive(p[:2]) {
		rest := p[2:]
		if !strings.HasPrefix(rest, `\`) {
			return "", Segments{}, amerrors.Newf(amerrors.ErrCodeInvalidPath, "drive-relative path %q is not supported", p)
		}
		s := splitFS(rest, `\`)
		return "", Segments{absolute: true, elems: append([]string{p[:2]}, s.elems...)}, nil
	}

	return "", splitFS(p, `\`), nil
}

// clean resolves "." and ".." and drops empty segments. An absolute path
// never climbs above its root or its drive.
func clean(s Segments, conv Convention) Segments {
	fixed := 0
	if s.absolute && conv == Windows && len(s.elems) > 0 && isDrive(s.elems[0]) {
		fixed = 1
	}
	out := make([]string, 0, len(s.elems))
	out = append(out, s.elems[:fixed]...)
	for _, e := range s.elems[fixed:] {
		switch e {
		case "", ".":
		case "..":
			switch {
			case len(out) > fixed && out[len(out)-1] != "..":
				out = out[:len(out)-1]
			case !s.absolute:
				out = append(out, e)
			}
		default:
			out = append(out, e)
		}
	}
	return Segments{absolute: s.absolute, elems: out}
}

// ToFilesystemPath renders the joined segments under conv.
func (l FileLocation) ToFilesystemPath(conv Convention) (string, error) {
	segs := l.Segments()
	sep := "/"
	if conv == Windows {
		sep = `\`
	}
	for _, e := range segs.elems {
		if strings.Contains(e, sep) || (conv == Windows && strings.Contains(e, "/")) {
			return "", amerrors.Newf(amerrors.ErrCodeInvalidPath,
				"segment %q cannot be rendered as a %s path", e, conv)
		}
	}

	var sb strings.Builder
	hasServer := l.authority != nil && *l.authority != ""
	if hasServer {
		sb.WriteString(sep + sep)
		sb.WriteString(*l.authority)
	}
	elems := segs.elems
	if segs.absolute {
		if conv == Windows && len(elems) > 0 && isDrive(elems[0]) {
			sb.WriteString(elems[0])
			elems = elems[1:]
		}
		if !hasServer || len(segs.elems) > 0 {
			sb.WriteString(sep)
		}
	}
	sb.WriteString(strings.Join(elems, sep))
	return sb.String(), nil
}

// FilesystemPath renders under the native convention.
func (l FileLocation) FilesystemPath() (string, error) {
	return l.ToFilesystemPath(Native)
}
