package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_ContainsBuildFields(t *testing.T) {
	str := String()
	assert.Contains(t, str, "pkms "+Version)
	assert.Contains(t, str, "commit:")
	assert.Contains(t, str, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestGetInfo_LdflagsWin(t *testing.T) {
	// Given: values injected at build time
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
	Version, Commit, Date = "v1.2.3", "abc123", "2026-01-02T03:04:05Z"

	// When: reading the info
	info := GetInfo()

	// Then: the injected values are reported unchanged
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.Date)
	assert.Equal(t, "v1.2.3", Short())
}

func TestBuildInfo_JSONFields(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, runtime.Version(), m["go_version"])
}
