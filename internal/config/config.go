// Package config loads the workspace configuration: the named component
// registry, the collections built from it, and search and logging settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/globber"
	"github.com/pkms-dev/pkms/internal/indexer"
	"github.com/pkms-dev/pkms/internal/screener"
)

const (
	// FileName is the configuration file inside a workspace directory.
	FileName = "pkms.yaml"
	// DefaultDBName is the database file of the default storage component.
	DefaultDBName = "index.db"
	// DefaultComponent names the registry entry used when a collection
	// leaves a component field out.
	DefaultComponent = "default"
	// DefaultMaxLimit caps search page size.
	DefaultMaxLimit = 50
)

// Config is the parsed pkms.yaml.
type Config struct {
	Version     int                `yaml:"version" json:"version"`
	Components  ComponentsConfig   `yaml:"components" json:"components"`
	Collections []CollectionConfig `yaml:"collections" json:"collections"`
	Search      SearchConfig       `yaml:"search" json:"search"`
	Logging     LoggingConfig      `yaml:"logging" json:"logging"`

	// Dir is the workspace directory; relative paths resolve against it.
	Dir string `yaml:"-" json:"-"`
}

// ComponentsConfig is the named component registry.
type ComponentsConfig struct {
	Storage  map[string]StorageConfig   `yaml:"storage" json:"storage"`
	Globber  map[string]globber.Config  `yaml:"globber" json:"globber"`
	Screener map[string]screener.Config `yaml:"screener" json:"screener"`
	Indexers map[string]IndexersConfig  `yaml:"indexers" json:"indexers"`
}

// StorageConfig locates an index database.
type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

// IndexersConfig maps file extensions to built-in indexer names. The key
// "*" sets the fallback for unmapped extensions.
type IndexersConfig map[string]string

// CollectionConfig is one ingestable directory tree.
type CollectionConfig struct {
	Name     string               `yaml:"name" json:"name"`
	Root     string               `yaml:"root" json:"root"`
	Globber  Ref[globber.Config]  `yaml:"globber,omitempty" json:"-"`
	Screener Ref[screener.Config] `yaml:"screener,omitempty" json:"-"`
	Storage  Ref[StorageConfig]   `yaml:"storage,omitempty" json:"-"`
	Indexers Ref[IndexersConfig]  `yaml:"indexers,omitempty" json:"-"`
	Workers  int                  `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// SearchConfig configures the read path.
type SearchConfig struct {
	// MaxLimit caps the page size a search may request.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
	// Storage selects the index searched and resolved against.
	Storage Ref[StorageConfig] `yaml:"storage,omitempty" json:"-"`
}

// LoggingConfig configures the rotating log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with defaults: one storage component at
// index.db, a default globber selecting every file, the default screening
// policy and the built-in indexers. It has no collections.
func NewConfig() *Config {
	sc := screener.DefaultConfig()
	return &Config{
		Version: 1,
		Components: ComponentsConfig{
			Storage: map[string]StorageConfig{
				DefaultComponent: {Path: DefaultDBName},
			},
			Globber: map[string]globber.Config{
				DefaultComponent: {Patterns: []string{"*"}, IgnoreFile: ".pkmsignore"},
			},
			Screener: map[string]screener.Config{
				DefaultComponent: sc,
			},
			Indexers: map[string]IndexersConfig{
				DefaultComponent: defaultIndexers(),
			},
		},
		Collections: []CollectionConfig{},
		Search: SearchConfig{
			MaxLimit: DefaultMaxLimit,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join("logs", "pkms.log"),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultIndexers() IndexersConfig {
	return IndexersConfig{
		".html": "html",
		".htm":  "html",
		".md":   "text",
		".txt":  "text",
	}
}

// ResolveDir picks the workspace directory: the explicit flag value, then
// PKMS_WORKSPACE_DIR, then ~/.pkms.
func ResolveDir(flag string) (string, error) {
	dir := flag
	if dir == "" {
		dir = os.Getenv("PKMS_WORKSPACE_DIR")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", amerrors.New(amerrors.ErrCodeConfigNotFound, "cannot determine home directory", err).
				WithSuggestion("Pass --workspace or set PKMS_WORKSPACE_DIR")
		}
		dir = filepath.Join(home, ".pkms")
	}
	dir, err := expandHome(dir)
	if err != nil {
		return "", err
	}
	return filepath.Abs(dir)
}

// Path returns the config file path for a workspace directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether dir has a config file.
func Exists(dir string) bool {
	_, err := os.Stat(Path(dir))
	return err == nil
}

// Load reads <dir>/pkms.yaml over the defaults, applies PKMS_* environment
// overrides and validates the result. A missing file is ERR_101.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()
	cfg.Dir = dir

	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, amerrors.Newf(amerrors.ErrCodeConfigNotFound, "no configuration at %s", path).
				WithSuggestion("Run 'pkms config --init' to create one")
		}
		return nil, amerrors.New(amerrors.ErrCodeFilePermission, "failed to read config file", err).
			WithDetail("path", path)
	}

	if err := cfg.decode(data); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode merges YAML onto c. Maps merge key by key, scalars and lists
// present in the file replace the defaults, and unknown keys are errors.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies PKMS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PKMS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PKMS_SEARCH_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Search.MaxLimit = n
		}
	}
	if v := os.Getenv("PKMS_DB_PATH"); v != "" {
		if c.Components.Storage == nil {
			c.Components.Storage = map[string]StorageConfig{}
		}
		c.Components.Storage[DefaultComponent] = StorageConfig{Path: v}
	}
}

// Validate checks the configuration and returns ERR_102 when invalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return amerrors.Newf(amerrors.ErrCodeConfigInvalid, format, args...)
	}

	if c.Version != 1 {
		return invalid("unsupported config version %d", c.Version)
	}
	if c.Search.MaxLimit <= 0 {
		return invalid("search.max_limit must be positive, got %d", c.Search.MaxLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return invalid("logging.max_size_mb and logging.max_files must be non-negative")
	}

	for name, st := range c.Components.Storage {
		if st.Path == "" {
			return invalid("components.storage.%s: path is required", name)
		}
	}
	for name, ix := range c.Components.Indexers {
		if err := validateIndexers(ix); err != nil {
			return invalid("components.indexers.%s: %v", name, err)
		}
	}

	seen := make(map[string]bool, len(c.Collections))
	for i, col := range c.Collections {
		if col.Name == "" {
			return invalid("collections[%d]: name is required", i)
		}
		if seen[col.Name] {
			return invalid("collections[%d]: duplicate name %q", i, col.Name)
		}
		seen[col.Name] = true
		if col.Root == "" {
			return invalid("collection %s: root is required", col.Name)
		}
		if col.Workers < 0 {
			return invalid("collection %s: workers must be non-negative, got %d", col.Name, col.Workers)
		}
		if col.Indexers.Inline != nil {
			if err := validateIndexers(*col.Indexers.Inline); err != nil {
				return invalid("collection %s: indexers: %v", col.Name, err)
			}
		}
	}
	return nil
}

func validateIndexers(ix IndexersConfig) error {
	for ext, name := range ix {
		if _, err := indexer.Builtin(name); err != nil {
			return fmt.Errorf("%s: unknown indexer %q (known: %s)", ext, name,
				strings.Join(indexer.BuiltinNames(), ", "))
		}
	}
	return nil
}

// ResolvePath expands a leading "~" and anchors relative paths at the
// workspace directory.
func (c *Config) ResolvePath(p string) (string, error) {
	p, err := expandHome(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.Dir, p)
	}
	return filepath.Clean(p), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeInvalidPath, "cannot expand ~", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// CollectionGlobber resolves the collection's globber field.
func (c *Config) CollectionGlobber(col CollectionConfig) (globber.Config, error) {
	return resolve("globber", col.Globber, c.Components.Globber, DefaultComponent)
}

// CollectionScreener resolves the collection's screener field.
func (c *Config) CollectionScreener(col CollectionConfig) (screener.Config, error) {
	return resolve("screener", col.Screener, c.Components.Screener, DefaultComponent)
}

// CollectionIndexers resolves the collection's indexers field.
func (c *Config) CollectionIndexers(col CollectionConfig) (IndexersConfig, error) {
	return resolve("indexers", col.Indexers, c.Components.Indexers, DefaultComponent)
}

// CollectionStorage resolves the collection's storage field.
func (c *Config) CollectionStorage(col CollectionConfig) (StorageConfig, error) {
	return resolve("storage", col.Storage, c.Components.Storage, DefaultComponent)
}

// SearchStorage resolves the storage searched and resolved against.
func (c *Config) SearchStorage() (StorageConfig, error) {
	return resolve("storage", c.Search.Storage, c.Components.Storage, DefaultComponent)
}

// Registry builds an indexer registry from an extension map.
func (ix IndexersConfig) Registry() (*indexer.Registry, error) {
	r := indexer.NewRegistry()
	for ext, name := range ix {
		impl, err := indexer.Builtin(name)
		if err != nil {
			return nil, err
		}
		if ext == "*" {
			r.SetFallback(impl)
			continue
		}
		r.Register(ext, impl)
	}
	return r, nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
