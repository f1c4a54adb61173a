package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestNew(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	t.Run("JSON形式", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

		logger.Debug("hidden")
		logger.Info("food item failed", "food", "egg", "stage", "lookup")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)

		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
		assert.Equal(t, "food item failed", record["msg"])
		assert.Equal(t, "egg", record["food"])
		assert.Equal(t, "nutrilog", record["service"])
	})

	t.Run("テキスト形式でデフォルトロガーになる", func(t *testing.T) {
		var buf bytes.Buffer
		New(Config{Level: slog.LevelDebug, Format: "text", Output: &buf})

		slog.Debug("retrieval strategy failed", "strategy", "semantic")
		assert.Contains(t, buf.String(), "strategy=semantic")
	})
}
