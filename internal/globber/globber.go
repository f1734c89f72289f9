// Package globber discovers the files of a collection root by pattern.
package globber

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/gitignore"
	"github.com/pkms-dev/pkms/internal/location"
)

// Config selects files under a root.
type Config struct {
	// Patterns are gitwildmatch lines evaluated against the path relative
	// to the root.
	Patterns []string `yaml:"patterns" json:"patterns"`

	// Negate selects the files the patterns do NOT match.
	Negate bool `yaml:"negate" json:"negate"`

	// IgnoreFile names a pattern file looked up in the root (for example
	// ".pkmsignore"). Paths it matches are pruned before Patterns apply.
	IgnoreFile string `yaml:"ignore_file,omitempty" json:"ignore_file,omitempty"`
}

// Globber walks a root and returns the selected files.
type Globber struct {
	cfg     Config
	matcher *gitignore.Matcher
}

// New compiles cfg.Patterns.
func New(cfg Config) (*Globber, error) {
	m, err := gitignore.Compile(cfg.Patterns)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "invalid globber pattern", err)
	}
	return &Globber{cfg: cfg, matcher: m}, nil
}

// Config returns the configuration the Globber was built with.
func (g *Globber) Config() Config { return g.cfg }

func (g *Globber) selects(rel string) bool {
	return g.matcher.Match(rel, false) != g.cfg.Negate
}

// Match reports whether loc would be selected. A relative sub is matched
// as the path under the root; otherwise the full path is used.
func (g *Globber) Match(loc location.FileLocation) bool {
	sub := loc.Sub()
	if !sub.IsEmpty() && !sub.IsAbsolute() {
		return g.selects(strings.Join(sub.Elems(), "/"))
	}
	return g.selects(strings.Join(loc.Segments().Elems(), "/"))
}

// Glob walks root and returns selected regular files in lexical order.
// Each result has root as its base and the relative path as its sub.
func (g *Globber) Glob(ctx context.Context, root location.FileLocation) ([]location.FileLocation, error) {
	if auth, ok := root.Authority(); root.Scheme() != location.SchemeFile || !ok || auth != "" {
		return nil, amerrors.Newf(amerrors.ErrCodeUnsupportedScheme,
			"cannot glob %s: only local file locations are supported", root.URI())
	}
	absRoot, err := root.FilesystemPath()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeFileNotFound, "collection root not accessible: "+absRoot, err)
	}
	if !info.IsDir() {
		return nil, amerrors.Newf(amerrors.ErrCodeInvalidPath, "collection root is not a directory: %s", absRoot)
	}

	ignore, err := g.loadIgnore(absRoot)
	if err != nil {
		return nil, err
	}

	base := root.Segments()
	var out []location.FileLocation
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			slog.Debug("glob_skip_unreadable", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignore != nil && ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore != nil && ignore.Match(rel, false) {
			return nil
		}
		if !isRegular(path, d) || !g.selects(rel) {
			return nil
		}

		sub := location.NewSegments(false, strings.Split(rel, "/")...)
		out = append(out, location.New(location.SchemeFile, location.Authority(""), base, sub))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Globber) loadIgnore(absRoot string) (*gitignore.Matcher, error) {
	if g.cfg.IgnoreFile == "" {
		return nil, nil
	}
	path := filepath.Join(absRoot, g.cfg.IgnoreFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	m := gitignore.New()
	if err := m.AddFromFile(path); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "cannot load ignore file", err)
	}
	if err := m.AddPattern("/" + g.cfg.IgnoreFile); err != nil {
		return nil, fmt.Errorf("ignore file pattern: %w", err)
	}
	return m, nil
}

// isRegular follows a symlink once; directories and devices are skipped.
func isRegular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
