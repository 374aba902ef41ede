package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/signalpool/internal/config"
)

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseLevel("trace")
	require.Error(t, err)
}

func TestFileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crank", "crank.log")
	logger, closeLog, err := New("crank", config.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)
	logger.Debug("funds settled", "pool", "abc")
	require.NoError(t, closeLog())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(body, &line))
	assert.Equal(t, "crank", line["service"])
	assert.Equal(t, "funds settled", line["msg"])
	assert.Equal(t, "abc", line["pool"])
}

func TestRejectsUnknownSettings(t *testing.T) {
	_, _, err := New("poolctl", config.LogConfig{Format: "xml", Output: "discard"})
	require.ErrorContains(t, err, "invalid log format")

	_, _, err = New("poolctl", config.LogConfig{Output: "syslog"})
	require.ErrorContains(t, err, "invalid log output")

	logger, closeLog, err := New("poolctl", config.LogConfig{Output: "none"})
	require.NoError(t, err)
	logger.Info("dropped")
	require.NoError(t, closeLog())
}
