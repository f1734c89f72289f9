package location

import (
	"errors"
	"testing"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestFromTokens_NullOnlyAtIndexZero(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []*string
		wantErr bool
		wantAbs bool
	}{
		{name: "absolute", tokens: []*string{nil, str("a"), str("b")}, wantAbs: true},
		{name: "relative", tokens: []*string{str("a"), str("")}},
		{name: "empty", tokens: nil},
		{name: "null in middle", tokens: []*string{str("a"), nil, str("b")}, wantErr: true},
		{name: "null at end", tokens: []*string{nil, str("a"), nil}, wantErr: true},
		{name: "double null", tokens: []*string{nil, nil}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := FromTokens(tt.tokens)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, amerrors.Sentinel(amerrors.ErrCodeInvalidSegment)))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAbs, s.IsAbsolute())
			assert.Equal(t, tt.tokens, nilIfEmpty(s.Tokens()))
		})
	}
}

func nilIfEmpty(t []*string) []*string {
	if len(t) == 0 {
		return nil
	}
	return t
}

func TestSegments_EmptyStringsArePreserved(t *testing.T) {
	s, err := FromTokens([]*string{nil, str("a"), str(""), str("b"), str("")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "", "b", ""}, s.Elems())
	assert.Equal(t, 5, s.Len())
}

func TestJoin(t *testing.T) {
	base := NewSegments(true, "root", "dir")

	tests := []struct {
		name string
		sub  Segments
		want Segments
	}{
		{name: "relative sub appends", sub: NewSegments(false, "x", "y"), want: NewSegments(true, "root", "dir", "x", "y")},
		{name: "absolute sub replaces", sub: NewSegments(true, "other"), want: NewSegments(true, "other")},
		{name: "empty sub keeps base", sub: Segments{}, want: base},
		{name: "empty segment kept", sub: NewSegments(false, ""), want: NewSegments(true, "root", "dir", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Join(base, tt.sub)
			assert.True(t, tt.want.Equal(got), "got %v", got.Tokens())
		})
	}
}

func TestJoin_DoesNotAliasInputs(t *testing.T) {
	a := NewSegments(true, "a")
	_ = Join(a, NewSegments(false, "b"))
	_ = Join(a, NewSegments(false, "c"))

	assert.Equal(t, []string{"a"}, a.Elems())
}

func TestSegments_HasPrefixAndTrim(t *testing.T) {
	full := NewSegments(true, "a", "b", "c")

	assert.True(t, full.HasPrefix(NewSegments(true, "a")))
	assert.True(t, full.HasPrefix(NewSegments(true)))
	assert.True(t, full.HasPrefix(full))
	assert.False(t, full.HasPrefix(NewSegments(false, "a")))
	assert.False(t, full.HasPrefix(NewSegments(true, "a", "bc")))
	assert.False(t, NewSegments(true, "a").HasPrefix(full))

	rest, ok := full.TrimPrefix(NewSegments(true, "a"))
	require.True(t, ok)
	assert.False(t, rest.IsAbsolute())
	assert.Equal(t, []string{"b", "c"}, rest.Elems())
}
