package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/signalpool/internal/config"
	"github.com/coldbell/signalpool/internal/logging"
)

func TestCloseWithLogsCloseError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	closeWith(logger, func() error { return errors.New("disk gone") })
	assert.Contains(t, buf.String(), "failed to close logger")
	assert.Contains(t, buf.String(), "disk gone")

	buf.Reset()
	closeWith(logger, func() error { return nil })
	assert.Empty(t, buf.String())
}

func TestCloseWithReportsFileLoggerFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crank.log")
	_, closeLogger, err := logging.New("crank", config.LogConfig{Output: "file", FilePath: path})
	require.NoError(t, err)
	require.NoError(t, closeLogger())

	var buf bytes.Buffer
	closeWith(slog.New(slog.NewTextHandler(&buf, nil)), closeLogger)
	assert.Contains(t, buf.String(), os.ErrClosed.Error())
}
