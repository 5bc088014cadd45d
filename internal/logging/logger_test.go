package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlucaspains/manifest2gh/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("text console respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(config.LoggingConfig{Level: "warn"}, false, &buf, false)

		logger.Info("hidden")
		logger.Warn("shown", "project", "teamA/libfoo")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "shown")
		assert.Contains(t, out, "project=teamA/libfoo")
	})

	t.Run("verbose enables debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(config.LoggingConfig{Level: "error"}, true, &buf, false)

		logger.Debug("debug line")

		assert.Contains(t, buf.String(), "debug line")
	})

	t.Run("json console", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, false, &buf, false)

		logger.Info("hello", "count", 2)

		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, float64(2), record["count"])
	})

	t.Run("writes to file and console", func(t *testing.T) {
		var buf bytes.Buffer
		logFile := filepath.Join(t.TempDir(), "run.log")
		logger := newLogger(config.LoggingConfig{
			Level:      "info",
			OutputFile: logFile,
			MaxSize:    1,
		}, false, &buf, false)

		logger.Info("to both")

		assert.Contains(t, buf.String(), "to both")
		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to both")
	})
}

func TestMultiHandler_Enabled(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h)

	logger.Info("info only to b")

	assert.Empty(t, a.String())
	assert.Contains(t, b.String(), "info only to b")
}
