package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := NewLogger(LogConfig{JSON: true}, &buf)
	defer closer.Close()

	logger.WithField("inliers", 12).Info("done")
	logger.Debug("hidden")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "done", entry["msg"])
	assert.Equal(t, float64(12), entry["inliers"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "align.log")
	var buf bytes.Buffer
	logger, closer := NewLogger(LogConfig{Debug: true, File: path, MaxSizeMB: 1, MaxBackups: 1}, &buf)
	logger.Debug("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, buf.String(), "to file")
}
