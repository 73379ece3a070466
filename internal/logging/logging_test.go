package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/locomotiva-cache/internal/config"
)

func TestNewLogger_TextRespectsLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "text"}, &out, &errOut)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "collection", "city-coordinates")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "msg=shown")
	assert.Contains(t, out.String(), "collection=city-coordinates")
	assert.Empty(t, errOut.String())
}

func TestNewLogger_JSONMirror(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "info", Format: "text", JSONMirror: true}, &out, &errOut)
	require.NoError(t, err)

	logger.Info("cache cleared")

	assert.Contains(t, out.String(), "msg=\"cache cleared\"")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(errOut.Bytes(), &rec))
	assert.Equal(t, "cache cleared", rec["msg"])
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := newLogger(config.LogConfig{Level: "loud"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = newLogger(config.LogConfig{Format: "xml"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}
