package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("chatty"))
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	// Arrange
	var buf bytes.Buffer
	log := logger.NewFromConfig(logger.Config{
		LogLevel: "warn",
		Service:  "attester",
		Output:   &buf,
	})

	// Act
	log.Info("dropped")
	log.Warn("kept", slog.String("date", "2024-12-01"))

	// Assert
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Only the warning should be written")
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "attester", entry["service"])
	assert.Equal(t, "2024-12-01", entry["date"])
	assert.Regexp(t, `^\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2}$`, entry["time"])
}
