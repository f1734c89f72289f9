package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating progress
	r.UpdateProgress(ProgressEvent{
		Collection:  "notes",
		Stage:       StageScreen,
		Current:     5,
		Total:       10,
		CurrentFile: "file:///notes/20240101%20a.md",
	})

	// Then: the line carries stage, collection, count and file
	assert.Equal(t, "[SCREEN] notes 5/10 - file:///notes/20240101%20a.md\n", buf.String())
}

func TestPlainRenderer_UpdateProgress_Throttled(t *testing.T) {
	// Given: a plain renderer and a thousand updates for one stage
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: every item reports
	for i := 1; i <= 1000; i++ {
		r.UpdateProgress(ProgressEvent{Stage: StageIndex, Current: i, Total: 1000})
	}

	// Then: roughly one line per tenth is printed and the last always is
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.LessOrEqual(t, len(lines), 12)
	assert.Contains(t, lines[len(lines)-1], "1000/1000")
}

func TestPlainRenderer_UpdateProgress_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageDiscover, Message: "walking"})
	r.UpdateProgress(ProgressEvent{Stage: StageDiscover})

	assert.Equal(t, "[WALK] walking\n", buf.String())
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	for _, st := range pipeline {
		r.UpdateProgress(ProgressEvent{Stage: st, Current: 1, Total: 1, Message: "x"})
	}
	r.AddError(ErrorEvent{Err: errors.New("boom")})
	r.Complete(CompletionStats{Files: 1, Indexed: 1})
	require.NoError(t, r.Stop())

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	tests := []struct {
		name  string
		event ErrorEvent
		want  string
	}{
		{"error with file", ErrorEvent{File: "a.md", Err: errors.New("boom")}, "ERROR: a.md: boom\n"},
		{"warning with file", ErrorEvent{File: "b.md", Err: errors.New("no id"), IsWarn: true}, "WARN: b.md: no id\n"},
		{"error without file", ErrorEvent{Err: errors.New("locked")}, "ERROR: locked\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewPlainRenderer(NewConfig(buf)).AddError(tt.event)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_Complete(t *testing.T) {
	tests := []struct {
		name     string
		stats    CompletionStats
		contains []string
		absent   []string
	}{
		{
			name:     "clean run",
			stats:    CompletionStats{Collections: 1, Files: 3, Indexed: 3, Duration: 1500 * time.Millisecond},
			contains: []string{"Complete: 3 of 3 files indexed in 1.5s"},
			absent:   []string{"skipped", "across"},
		},
		{
			name:     "mixed outcomes",
			stats:    CompletionStats{Collections: 2, Files: 6, Indexed: 3, Skipped: 1, Rejected: 1, Failed: 1},
			contains: []string{"across 2 collections", "skipped 1, rejected 1, failed 1"},
		},
		{
			name:     "dry run",
			stats:    CompletionStats{Collections: 1, Files: 2, Indexed: 2, DryRun: true},
			contains: []string{"2 of 2 files would index"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewPlainRenderer(NewConfig(buf)).Complete(tt.stats)
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}
