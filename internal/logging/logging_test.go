package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNew_ConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	day := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)

	logger, closer, err := New(Options{
		Level:   "debug",
		Console: &console,
		NoColor: true,
		Dir:     dir,
		Now:     func() time.Time { return day },
	})
	require.NoError(t, err)

	logger.With("request_id", "abc").Info("pipeline: processing question", "question", "q", "empty", "")
	logger.Debug("debug line")
	require.NoError(t, closer.Close())

	out := console.String()
	assert.Contains(t, out, "pipeline: processing question")
	assert.Contains(t, out, "request_id=abc")
	assert.NotContains(t, out, "empty=")
	assert.Contains(t, out, "debug line")

	data, err := os.ReadFile(filepath.Join(dir, "nl2sql_2024-03-09.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "pipeline: processing question", rec["msg"])
	assert.Equal(t, "abc", rec["request_id"])
	assert.NotContains(t, rec, "empty")
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, rec["time"])
}

func TestNew_LevelFilters(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := New(Options{Level: "warn", Console: &console, NoColor: true})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestNew_NoOutputs(t *testing.T) {
	logger, closer, err := New(Options{})
	require.NoError(t, err)
	logger.Info("nothing")
	assert.NoError(t, closer.Close())

	_, _, err = New(Options{Level: "nope"})
	assert.Error(t, err)
}

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 678_900_000, time.FixedZone("X", 3600))
	assert.Equal(t, "2024-01-02T02:04:05.678Z", formatRFC3339Millis(ts))
}

func TestNew_GroupsReachEveryOutput(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	day := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	logger, closer, err := New(Options{Console: &console, NoColor: true, Dir: dir, Now: func() time.Time { return day }})
	require.NoError(t, err)

	logger.WithGroup("store").Info("connected", "kind", "relational")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "store.kind=relational")

	data, err := os.ReadFile(filepath.Join(dir, FileName(day)))
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, map[string]any{"kind": "relational"}, rec["store"])
}
