package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("should write structured JSON entries", func(t *testing.T) {
		// Arrange
		var buffer bytes.Buffer
		logger, err := New(Config{Level: "info", Format: "json", Output: &buffer})
		require.NoError(t, err)

		// Act
		logger.Info("analysis completed", zap.String("speaker", "SPEAKER_0"), zap.Int("skipped", 2))
		require.NoError(t, logger.Sync())

		// Assert
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "analysis completed", entry["msg"])
		assert.Equal(t, "SPEAKER_0", entry["speaker"])
		assert.Equal(t, float64(2), entry["skipped"])
		assert.NotContains(t, entry, "caller")
	})

	t.Run("should drop entries below the configured level", func(t *testing.T) {
		var buffer bytes.Buffer
		logger, err := New(Config{Level: "warn", Format: "json", Output: &buffer})
		require.NoError(t, err)

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buffer.String(), "hidden")
		assert.Contains(t, buffer.String(), "shown")
	})

	t.Run("should write console entries", func(t *testing.T) {
		var buffer bytes.Buffer
		logger, err := New(Config{Level: "debug", Format: "console", Output: &buffer})
		require.NoError(t, err)

		logger.Debug("parsing transcript")

		assert.Contains(t, buffer.String(), "parsing transcript")
		assert.False(t, strings.HasPrefix(buffer.String(), "{"))
	})

	t.Run("should reject an unknown format", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Format: "xml"})

		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "unsupported log format")
	})

	t.Run("should reject an unknown level", func(t *testing.T) {
		_, err := New(Config{Level: "loud", Format: "json"})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown log level")
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		assert.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}
