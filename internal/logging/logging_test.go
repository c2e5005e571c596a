package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "synapse.log")
	logger, err := New(Options{File: path})
	require.NoError(t, err)

	logger.Info("hidden at warn level")
	logger.Warn("squad cache write failed", zap.String("path", "/x"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "squad cache write failed", entry["msg"])
	assert.Equal(t, "/x", entry["path"])
	assert.Contains(t, entry["time"], "T", "time should be ISO8601")
}

func TestNew_Verbose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synapse.log")
	logger, err := New(Options{File: path, Verbose: true})
	require.NoError(t, err)

	logger.Debug("layer done")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "layer done")
}

func TestMust_FallsBackToNop(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// A regular file in the directory position makes the log path unusable.
	logger := Must(Options{File: filepath.Join(blocker, "sub", "synapse.log")})
	require.NotNil(t, logger)
	logger.Warn("dropped")
}
