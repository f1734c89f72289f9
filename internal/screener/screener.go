// Package screener decides which discovered files enter the indexing
// pipeline and captures their identity stamp. It never indexes and never
// writes to storage.
package screener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
)

// defaultHashCacheSize bounds the (path, size, mtime) -> sha256 cache.
const defaultHashCacheSize = 4096

// Config controls admission.
type Config struct {
	// EditableExtensions mark living documents; everything else is a snapshot.
	EditableExtensions []string `yaml:"editable_extensions" json:"editable_extensions"`

	// HashCacheSize bounds the content hash cache. Zero uses the default.
	HashCacheSize int `yaml:"hash_cache_size,omitempty" json:"hash_cache_size,omitempty"`
}

// DefaultConfig returns the default screening policy.
func DefaultConfig() Config {
	return Config{EditableExtensions: []string{".md", ".txt"}}
}

type hashKey struct {
	path    string
	size    int64
	modNano int64
}

// Screener turns candidates into FileStamps.
type Screener struct {
	cfg    Config
	hashes *lru.Cache[hashKey, string]
}

// New creates a Screener.
func New(cfg Config) (*Screener, error) {
	size := cfg.HashCacheSize
	if size <= 0 {
		size = defaultHashCacheSize
	}
	cache, err := lru.New[hashKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}
	exts := make([]string, len(cfg.EditableExtensions))
	for i, ext := range cfg.EditableExtensions {
		exts[i] = strings.ToLower(ext)
	}
	cfg.EditableExtensions = exts
	return &Screener{cfg: cfg, hashes: cache}, nil
}

// Screen returns one result per candidate, in input order. A failing
// candidate yields a REJECTED result and the batch continues. Once ctx is
// done the remaining candidates are rejected with the context error.
func (s *Screener) Screen(ctx context.Context, candidates []location.FileLocation) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = s.ScreenOne(ctx, c)
	}
	return results
}

// ScreenOne screens a single candidate.
func (s *Screener) ScreenOne(ctx context.Context, loc location.FileLocation) Result {
	stamp, err := s.stamp(ctx, loc)
	if err != nil {
		slog.Debug("file_rejected", slog.String("uri", loc.URI()), slog.String("reason", err.Error()))
		return Result{Location: loc, Status: StatusRejected, Reason: err.Error(), Err: err}
	}
	return Result{Location: loc, Status: StatusApproved, Stamp: stamp}
}

func (s *Screener) stamp(ctx context.Context, loc location.FileLocation) (*FileStamp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := loc.FilesystemPath()
	if err != nil {
		return nil, err
	}
	name, err := ParseFilename(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeFileNotFound, "cannot stat "+path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, amerrors.Newf(amerrors.ErrCodeInvalidPath, "%s is not a regular file", path)
	}

	sum, err := s.hash(path, info)
	if err != nil {
		return nil, err
	}

	return &FileStamp{
		ID:         name.ID,
		Extension:  name.Extension,
		Kind:       kindFor(name.Extension, s.cfg.EditableExtensions),
		Title:      name.Title,
		Importance: name.Importance,
		Context:    name.Context,
		Size:       info.Size(),
		Created:    createdTime(info),
		Modified:   info.ModTime(),
		SHA256:     sum,
		Metadata:   map[string]string{"file_name": name.Name},
	}, nil
}

func (s *Screener) hash(path string, info os.FileInfo) (string, error) {
	key := hashKey{path: path, size: info.Size(), modNano: info.ModTime().UnixNano()}
	if sum, ok := s.hashes.Get(key); ok {
		return sum, nil
	}
	sum, err := HashFile(path)
	if err != nil {
		return "", err
	}
	s.hashes.Add(key, sum)
	return sum, nil
}

// HashFile streams a file through SHA-256 and returns lower-case hex.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeFilePermission, "cannot open "+path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", amerrors.New(amerrors.ErrCodeFilePermission, "cannot read "+path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// modTimeFallback is used where the platform exposes no change time.
func modTimeFallback(info os.FileInfo) time.Time {
	return info.ModTime()
}
