package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled patterns and provides thread-safe matching.
type Matcher struct {
	rules []rule
	mu    sync.RWMutex
}

type rule struct {
	pattern  string
	regex    *regexp.Regexp
	negation bool // starts with !
	dirOnly  bool // ends with /
	anchored bool // leading / or an interior /
}

// New creates a new empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Compile builds a Matcher from pattern lines.
func Compile(patterns []string) (*Matcher, error) {
	m := New()
	for _, p := range patterns {
		if err := m.AddPattern(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddPattern compiles one pattern line and appends it. Blank lines and
// comments are ignored.
func (m *Matcher) AddPattern(line string) error {
	r, ok, err := parseRule(line)
	if err != nil || !ok {
		return err
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
	return nil
}

// AddFromFile appends every pattern in a gitignore-style file.
func (m *Matcher) AddFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open pattern file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := m.AddPattern(sc.Text()); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read pattern file: %w", err)
	}
	return nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

func parseRule(line string) (rule, bool, error) {
	// "\ " at the end keeps a literal trailing space.
	escapedSpace := strings.HasSuffix(line, `\ `)
	pattern := strings.TrimSpace(line)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return rule{}, false, nil
	}

	r := rule{pattern: pattern}
	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negation = true
		pattern = pattern[1:]
	}
	if escapedSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// "doc/frotz" means "/doc/frotz", not "**/doc/frotz".
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		r.anchored = true
	}

	re, err := regexp.Compile("^" + patternToRegex(pattern) + "$")
	if err != nil {
		return rule{}, false, fmt.Errorf("invalid pattern %q: %w", r.pattern, err)
	}
	r.regex = re
	return r, true, nil
}

// Match reports whether the last applicable rule selects path.
// path is relative and may use either separator.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := false
	for _, r := range m.rules {
		if r.matches(path, isDir) {
			matched = !r.negation
		}
	}
	return matched
}

// matches checks a single rule. A directory-only rule also applies to
// everything below a matching directory.
func (r rule) matches(path string, isDir bool) bool {
	parts := strings.Split(path, "/")
	last := len(parts) - 1

	if r.anchored {
		if r.regex.MatchString(path) {
			return !r.dirOnly || isDir
		}
		for i := range parts[:last] {
			if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
				return true
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				return i < last || isDir
			}
		}
		return false
	}

	if r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// patternToRegex converts a gitwildmatch pattern to a regex string.
func patternToRegex(pattern string) string {
	var sb strings.Builder

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				sb.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				sb.WriteString(".*")
				i += 2
				continue
			}
			sb.WriteString("[^/]*")
			i++

		case '?':
			sb.WriteString("[^/]")
			i++

		case '[':
			j := strings.IndexByte(pattern[i+1:], ']')
			if j < 0 {
				sb.WriteString(`\[`)
				i++
				continue
			}
			class := pattern[i+1 : i+1+j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += j + 2

		case '\\':
			if i+1 < len(pattern) {
				sb.WriteString(regexp.QuoteMeta(pattern[i+1 : i+2]))
				i += 2
				continue
			}
			sb.WriteString(`\\`)
			i++

		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}

	return sb.String()
}
