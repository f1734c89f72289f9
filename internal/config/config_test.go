package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/globber"
	"github.com/pkms-dev/pkms/internal/screener"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: the registry has a default entry of every kind
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, DefaultDBName, cfg.Components.Storage[DefaultComponent].Path)
	assert.Contains(t, cfg.Components.Globber, DefaultComponent)
	assert.Contains(t, cfg.Components.Screener, DefaultComponent)
	assert.Equal(t, "html", cfg.Components.Indexers[DefaultComponent][".html"])
	assert.Equal(t, DefaultMaxLimit, cfg.Search.MaxLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Collections)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Equal(t, amerrors.ErrCodeConfigNotFound, amerrors.GetCode(err))
}

func TestLoad_ReferencesAndInline(t *testing.T) {
	// Given: a config mixing $name references and inline components
	dir := t.TempDir()
	writeConfig(t, dir, `
version: 1
components:
  storage:
    archive: {path: archive.db}
  globber:
    notes:
      patterns: ["*.md", "!drafts/"]
collections:
  - name: notes
    root: ~/notes
    globber: $notes
    workers: 4
  - name: web
    root: /srv/web
    globber:
      patterns: ["*.html"]
      negate: true
    storage: $archive
search:
  max_limit: 20
logging:
  level: debug
`)

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: defaults are merged with the file
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, 20, cfg.Search.MaxLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Logging.MaxFiles, "untouched defaults survive")
	assert.Contains(t, cfg.Components.Storage, DefaultComponent)
	require.Len(t, cfg.Collections, 2)

	// And: references resolve against the registry
	notes := cfg.Collections[0]
	assert.Equal(t, "notes", notes.Globber.Name)
	g, err := cfg.CollectionGlobber(notes)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.md", "!drafts/"}, g.Patterns)

	st, err := cfg.CollectionStorage(notes)
	require.NoError(t, err)
	assert.Equal(t, DefaultDBName, st.Path, "missing field falls back to the default entry")

	// And: inline values are used as-is
	web := cfg.Collections[1]
	g, err = cfg.CollectionGlobber(web)
	require.NoError(t, err)
	assert.Equal(t, globber.Config{Patterns: []string{"*.html"}, Negate: true}, g)
	st, err = cfg.CollectionStorage(web)
	require.NoError(t, err)
	assert.Equal(t, "archive.db", st.Path)
}

func TestConfig_DanglingReference(t *testing.T) {
	cfg := NewConfig()
	col := CollectionConfig{Name: "x", Root: "/x", Screener: Named[screener.Config]("missing")}

	_, err := cfg.CollectionScreener(col)
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeUnknownComponent, amerrors.GetCode(err))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"bad yaml", "collections: [", amerrors.ErrCodeConfigInvalid},
		{"unknown key", "serach: {max_limit: 3}", amerrors.ErrCodeConfigInvalid},
		{"bad reference syntax", "collections:\n  - {name: a, root: /a, globber: notes}", amerrors.ErrCodeConfigInvalid},
		{"missing root", "collections:\n  - {name: a}", amerrors.ErrCodeConfigInvalid},
		{"duplicate collection", "collections:\n  - {name: a, root: /a}\n  - {name: a, root: /b}", amerrors.ErrCodeConfigInvalid},
		{"bad level", "logging: {level: loud}", amerrors.ErrCodeConfigInvalid},
		{"bad max limit", "search: {max_limit: 0}", amerrors.ErrCodeConfigInvalid},
		{"unknown indexer", "components:\n  indexers:\n    custom: {'.pdf': ocr}", amerrors.ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.body)

			_, err := Load(dir)

			require.Error(t, err)
			assert.Equal(t, tt.code, amerrors.GetCode(err))
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	// Given: a minimal file and PKMS_* variables
	dir := t.TempDir()
	writeConfig(t, dir, "version: 1\n")
	t.Setenv("PKMS_LOG_LEVEL", "warn")
	t.Setenv("PKMS_SEARCH_MAX_LIMIT", "7")
	t.Setenv("PKMS_DB_PATH", "/tmp/other.db")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: the environment wins
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Search.MaxLimit)
	st, err := cfg.SearchStorage()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", st.Path)
}

func TestResolveDir(t *testing.T) {
	flagDir := t.TempDir()
	envDir := t.TempDir()

	t.Setenv("PKMS_WORKSPACE_DIR", envDir)
	got, err := ResolveDir(flagDir)
	require.NoError(t, err)
	assert.Equal(t, flagDir, got, "flag beats environment")

	got, err = ResolveDir("")
	require.NoError(t, err)
	assert.Equal(t, envDir, got)

	t.Setenv("PKMS_WORKSPACE_DIR", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err = ResolveDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pkms"), got)
}

func TestConfig_ResolvePath(t *testing.T) {
	cfg := NewConfig()
	cfg.Dir = "/work/space"

	p, err := cfg.ResolvePath("index.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/work/space", "index.db"), p)

	p, err = cfg.ResolvePath("/abs/index.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/abs/index.db"), p)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	p, err = cfg.ResolvePath("~/notes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "notes"), p)
}

func TestIndexersConfig_Registry(t *testing.T) {
	reg, err := IndexersConfig{".md": "text", "*": "text"}.Registry()
	require.NoError(t, err)

	_, ok := reg.Lookup(".md")
	assert.True(t, ok)
	_, ok = reg.Lookup(".unknown")
	assert.True(t, ok, "fallback serves unmapped extensions")

	_, err = IndexersConfig{".md": "nope"}.Registry()
	assert.Error(t, err)
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	// Given: a config with a referencing collection
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Collections = append(cfg.Collections, CollectionConfig{
		Name:    "notes",
		Root:    "/notes",
		Globber: Named[globber.Config](DefaultComponent),
	})

	// When: writing and loading it back
	require.NoError(t, cfg.WriteYAML(Path(dir)))
	loaded, err := Load(dir)
	require.NoError(t, err)

	// Then: the reference survives as a reference
	require.Len(t, loaded.Collections, 1)
	assert.Equal(t, DefaultComponent, loaded.Collections[0].Globber.Name)
	assert.Nil(t, loaded.Collections[0].Globber.Inline)
}
