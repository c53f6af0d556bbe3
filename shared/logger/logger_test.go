package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	cfg.writer = output
	logger, err := New(&cfg)
	require.NoError(t, err)
	return logger, output
}

func entries(t *testing.T, output *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{level: "debug", want: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", want: []string{"INFO", "WARN", "ERROR"}},
		{level: "warning", want: []string{"WARN", "ERROR"}},
		{level: "error", want: []string{"ERROR"}},
		{level: "verbose", want: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, output := newBuffered(t, Config{Level: tt.level, Format: "json"})

			logger.Debug("Trigger decoded")
			logger.Info("Job created", slog.String("job_id", "job-1"))
			logger.Warn("Retrying stage")
			logger.Error("Job failed", slog.String("class", "external_call"))

			var levels []string
			for _, e := range entries(t, output) {
				levels = append(levels, e["level"].(string))
			}
			assert.Equal(t, tt.want, levels)
		})
	}
}

func TestNew_JSONAttributes(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "json"})

	logger.Info("Section committed",
		slog.String("section_id", "s02"),
		slog.Int("remaining", 3),
		slog.Bool("advanced", false),
		slog.Float64("amount_usd", 0.25),
	)

	got := entries(t, output)
	require.Len(t, got, 1)
	assert.Equal(t, "Section committed", got[0]["msg"])
	assert.Equal(t, "s02", got[0]["section_id"])
	assert.Equal(t, float64(3), got[0]["remaining"])
	assert.Equal(t, false, got[0]["advanced"])
	assert.Equal(t, 0.25, got[0]["amount_usd"])
	assert.Contains(t, got[0], "time")
}

func TestNew_Console(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "console"})

	logger.Info("Worker service started")

	// tint abbreviates levels
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "Worker service started")
}

func TestNew_Source(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "json", EnableSource: true})

	logger.Info("Stage advanced")

	got := entries(t, output)
	require.Len(t, got, 1)
	source, ok := got[0]["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("Job completed", slog.String("job_id", "job-1"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "job-1", entry["job_id"])
}

func TestNew_FileOutputError(t *testing.T) {
	logger, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "worker.log")})
	require.Error(t, err)
	assert.Nil(t, logger)
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NoError(t, logger.Close())
}

func TestLogger_Derived(t *testing.T) {
	logger, output := newBuffered(t, Config{Level: "info", Format: "json"})

	logger.Component("runner").Info("Stage advanced")
	logger.With(slog.String("job_id", "job-7")).Info("Job completed")
	logger.WithAttrs(slog.String("request_id", "req-1")).Info("HTTP Request")
	logger.WithGroup("trigger").Info("Received trigger", slog.String("stage", "script"))

	got := entries(t, output)
	require.Len(t, got, 4)
	assert.Equal(t, "runner", got[0]["component"])
	assert.Equal(t, "job-7", got[1]["job_id"])
	assert.Equal(t, "req-1", got[2]["request_id"])
	assert.Equal(t, map[string]any{"stage": "script"}, got[3]["trigger"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}
