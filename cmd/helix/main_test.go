package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/helix/internal/archive"
	"github.com/kingrea/helix/internal/modules/smcogtrees"
	"github.com/kingrea/helix/internal/record/recordtest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunNamesArchiveAfterInput(t *testing.T) {
	dir := t.TempDir()
	input := recordtest.WriteNisin(t, dir)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "run", input, "-o", outDir, "--cpus", "1", "--smcog-trees")
	require.NoError(t, err, out)
	assert.Contains(t, out, "nisin")
	assert.Contains(t, out, "computed 3")

	arcPath := filepath.Join(outDir, "nisin.json")
	arc, err := archive.Load(arcPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"nisin"}, arc.RecordIDs())
	_, err = os.Stat(filepath.Join(outDir, "logs", "helix.log"))
	assert.NoError(t, err)
	trees, err := filepath.Glob(filepath.Join(outDir, smcogtrees.OutputDir, "nisin", "*.png"))
	require.NoError(t, err)
	assert.Len(t, trees, recordtest.NisinClassified)

	out, err = execute(t, "run", "--reuse-results", arcPath, "-o", outDir, "--archive-name", "again", "--smcog-trees")
	require.NoError(t, err, out)
	assert.Contains(t, out, "cached 3")

	out, err = execute(t, "verify", arcPath, "-o", outDir, "--smcog-trees")
	require.NoError(t, err, out)
	assert.Contains(t, out, "nisin")
}

func TestVerifyFlagsStaleOutputsWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	input := recordtest.WriteNisin(t, dir)
	outDir := filepath.Join(dir, "out")
	out, err := execute(t, "run", input, "-o", outDir, "--cpus", "1")
	require.NoError(t, err, out)
	arcPath := filepath.Join(outDir, "nisin.json")

	summaryPath := filepath.Join(outDir, "summary", "nisin", "summary.md")
	content, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(summaryPath, append(content, "edited\n"...), 0o644))

	out, err = execute(t, "verify", arcPath, "-o", outDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "stale output")
	assert.Contains(t, out, "checksum mismatch")

	emptyOut := filepath.Join(dir, "empty")
	out, err = execute(t, "verify", arcPath, "-o", emptyOut)
	require.NoError(t, err, out)
	assert.Contains(t, out, "missing")
	_, err = os.Stat(emptyOut)
	assert.True(t, os.IsNotExist(err), "verify must not create the output directory")
}

func TestCheckWritesNothing(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	out, err := execute(t, "check", "-o", outDir)
	require.NoError(t, err, out)
	_, err = os.Stat(outDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRunWithoutInputsFails(t *testing.T) {
	_, err := execute(t, "run", "-o", t.TempDir())
	assert.Error(t, err)
}

func TestCheckReportsBadOptions(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "check", "-o", dir, "--smcog-trees", "--smcog-trees-attempts", "0")
	assert.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out, "smcog-trees-attempts")

	out, err = execute(t, "check", "-o", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ready")
}

func TestProjectConfigSuppliesOptions(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "helix.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("version: 1\noptions:\n  smcog-trees: true\n"), 0o644))

	out, err := execute(t, "modules", "--config", cfgPath, "-o", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, smcogtrees.ID)
	assert.Contains(t, out, "--smcog-trees-tool")
}
