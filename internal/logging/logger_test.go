package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestNewWritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(dir, Options{})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("run complete", zap.String("record", "nisin"))
	_ = logger.Sync()

	lines := readLines(t, Path(dir))
	require.Len(t, lines, 1)
	assert.Equal(t, "run complete", lines[0]["msg"])
	assert.Equal(t, "nisin", lines[0]["record"])
	assert.Contains(t, lines[0], "time")
}

func TestVerboseLogsDebugAndAppends(t *testing.T) {
	dir := t.TempDir()
	first, err := New(dir, Options{})
	require.NoError(t, err)
	first.Info("first run")
	_ = first.Sync()

	second, err := New(dir, Options{Verbose: true})
	require.NoError(t, err)
	second.Debug("cache miss")
	_ = second.Sync()

	lines := readLines(t, Path(dir))
	require.Len(t, lines, 2)
	assert.Equal(t, "debug", lines[1]["level"])
}

func TestEmptyDirLogsToStderrOnly(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	logger, err := New("", Options{})
	require.NoError(t, err)
	logger.Info("dry run")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
