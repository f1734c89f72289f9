package logging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.FilePath != "" {
		t.Errorf("expected no log file by default, got: %s", cfg.FilePath)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("expected 10MB x 5 files, got: %dMB x %d", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "pkms.log")
	var stderr bytes.Buffer

	logger, cleanup, err := setup(Config{
		Level:    "debug",
		FilePath: logPath,
		MaxFiles: 3,
	}, &stderr)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	logger.Debug("ingest_started", "collection", "notes")
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"ingest_started"`) {
		t.Errorf("expected JSON record in file, got: %s", data)
	}
	if stderr.Len() != 0 {
		t.Errorf("expected nothing on stderr, got: %s", stderr.String())
	}
}

func TestSetup_TeesToStderr(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pkms.log")
	var stderr bytes.Buffer

	logger, cleanup, err := setup(Config{Level: "info", FilePath: logPath, WriteToStderr: true}, &stderr)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer cleanup()

	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(stderr.String(), "hidden") {
		t.Error("debug record passed an info level")
	}
	if !strings.Contains(stderr.String(), "shown") {
		t.Error("expected info record on stderr")
	}
}

func TestSetup_NoFileUsesStderr(t *testing.T) {
	var stderr bytes.Buffer
	logger, cleanup, err := setup(Config{Level: "warn"}, &stderr)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer cleanup()

	logger.Warn("writer_locked")
	if !strings.Contains(stderr.String(), "writer_locked") {
		t.Errorf("expected record on stderr, got: %q", stderr.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.input).String(); got != tc.expected {
			t.Errorf("ParseLevel(%q) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pkms.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.SetSyncEach(false)

	line := []byte(strings.Repeat("x", 1023) + "\n")
	for i := 0; i < 1500; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated file: %v", err)
	}
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("current log missing: %v", err)
	}
	if info.Size() > 1024*1024 {
		t.Errorf("current log exceeds max size: %d", info.Size())
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "pkms.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.SetSyncEach(false)

	chunk := bytes.Repeat([]byte("y"), 600*1024)
	for i := 0; i < 6; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "pkms.log.*"))
	if len(matches) > 2 {
		t.Errorf("expected at most 2 rotated files, got %v", matches)
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("file beyond max files should be removed")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "pkms.log"), 1, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pkms.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	w.SetSyncEach(false)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "goroutine %d line %d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	_ = w.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 400 {
		t.Errorf("expected 400 lines, got %d", got)
	}
}

func TestParseLine(t *testing.T) {
	e := ParseLine(`{"time":"2026-01-02T03:04:05.5Z","level":"WARN","msg":"file_failed","uri":"file:///a"}`)
	if !e.Valid {
		t.Fatal("expected valid entry")
	}
	if e.Level != "WARN" || e.Msg != "file_failed" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Attrs["uri"] != "file:///a" {
		t.Errorf("expected uri attribute, got %v", e.Attrs)
	}
	if _, ok := e.Attrs["msg"]; ok {
		t.Error("standard fields should not be attributes")
	}

	bad := ParseLine("not json")
	if bad.Valid || bad.Raw != "not json" {
		t.Errorf("expected raw invalid entry, got %+v", bad)
	}
}

func TestViewer_Format(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	e := ParseLine(`{"time":"2026-01-02T03:04:05.5Z","level":"INFO","msg":"ingest_completed","indexed":3,"failed":0}`)

	got := v.Format(e)
	want := "03:04:05.500 INFO  ingest_completed failed=0 indexed=3"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
	if v.Format(ParseLine("plain")) != "plain" {
		t.Error("invalid lines should print raw")
	}
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pkms.log")
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return p
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t,
		`{"time":"2026-01-01T00:00:01Z","level":"DEBUG","msg":"one"}`,
		`{"time":"2026-01-01T00:00:02Z","level":"INFO","msg":"two"}`,
		`{"time":"2026-01-01T00:00:03Z","level":"ERROR","msg":"three"}`,
		`{"time":"2026-01-01T00:00:04Z","level":"INFO","msg":"four search"}`,
	)

	tests := []struct {
		name string
		cfg  ViewerConfig
		n    int
		want []string
	}{
		{"last two", ViewerConfig{}, 2, []string{"three", "four search"}},
		{"level filter", ViewerConfig{Level: "info"}, 10, []string{"two", "three", "four search"}},
		{"pattern filter", ViewerConfig{Pattern: regexp.MustCompile("search")}, 10, []string{"four search"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := NewViewer(tc.cfg, &bytes.Buffer{}).Tail(path, tc.n)
			if err != nil {
				t.Fatalf("Tail failed: %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.Msg)
			}
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestViewer_Tail_NonexistentFile(t *testing.T) {
	_, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail("/nonexistent/pkms.log", 10)
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeLog(t, `{"time":"2026-01-01T00:00:01Z","level":"INFO","msg":"old"}`)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// let Follow seek to the end before appending
	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_, _ = f.WriteString(`{"time":"2026-01-01T00:00:02Z","level":"INFO","msg":"new"}` + "\n")
	_ = f.Close()

	select {
	case e := <-entries:
		if e.Msg != "new" {
			t.Errorf("expected the appended entry, got %q", e.Msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for followed entry")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned %v", err)
	}
}
