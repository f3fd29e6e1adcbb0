package summary

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/helix/internal/artifact"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/modules/genefunctions"
	"github.com/kingrea/helix/internal/record"
	"github.com/kingrea/helix/internal/record/recordtest"
)

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func setup(t *testing.T) (*Module, *record.Record, module.Prior, config.Config) {
	t.Helper()
	sets := []config.OptionSet{genefunctions.New().Options(), New().Options()}
	cfg, err := config.Build(config.ProjectConfig{Version: 1}, nil, sets)
	require.NoError(t, err)
	cfg.OutputDir = t.TempDir()

	rec := recordtest.Nisin(t)
	gf, err := genefunctions.New().RunFresh(context.Background(), rec, nil, cfg)
	require.NoError(t, err)
	m := New(WithClock(func() time.Time { return fixedNow }))
	return m, rec, module.Prior{genefunctions.ID: gf}, cfg
}

func TestRunFreshCountsFunctions(t *testing.T) {
	m, rec, prior, cfg := setup(t)
	res, err := m.RunFresh(context.Background(), rec, prior, cfg)
	require.NoError(t, err)
	sum := res.(*Result)

	assert.Equal(t, 900, sum.Length)
	assert.Equal(t, 9, sum.CDSCount)
	assert.Equal(t, map[string]int{
		string(record.FunctionAdditional): 3,
		string(record.FunctionTransport):  2,
		string(record.FunctionRegulatory): 2,
		string(record.FunctionOther):      2,
	}, sum.Functions)
	assert.Equal(t, fixedNow, sum.ComputedAt)
	assert.Equal(t, "biosynthetic-additional", sum.FunctionNames()[0])
}

func TestRunFreshNeedsGeneFunctions(t *testing.T) {
	m, rec, _, cfg := setup(t)
	_, err := m.RunFresh(context.Background(), rec, module.Prior{}, cfg)
	assert.True(t, errors.Is(err, module.ErrExecution))
}

func TestRegenerateRoundTrip(t *testing.T) {
	m, rec, prior, cfg := setup(t)
	res, err := m.RunFresh(context.Background(), rec, prior, cfg)
	require.NoError(t, err)
	payload, err := res.Serialize()
	require.NoError(t, err)

	later := New(WithClock(func() time.Time { return fixedNow.Add(time.Hour) }))
	rebuilt, err := later.Regenerate(payload, rec, cfg)
	require.NoError(t, err)
	again, err := rebuilt.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(again))
	assert.Equal(t, string(payload), string(again))
}

func TestRegenerateRejectsStalePayload(t *testing.T) {
	m, rec, _, cfg := setup(t)
	cases := map[string]string{
		"record":    `{"schema":1,"record_id":"x","length":900,"cds_count":9,"computed_at":"2024-05-01T12:30:00Z"}`,
		"cds count": `{"schema":1,"record_id":"nisin","length":900,"cds_count":3,"computed_at":"2024-05-01T12:30:00Z"}`,
		"length":    `{"schema":1,"record_id":"nisin","length":12,"cds_count":9,"computed_at":"2024-05-01T12:30:00Z"}`,
		"time":      `{"schema":1,"record_id":"nisin","length":900,"cds_count":9}`,
		"schema":    `{"schema":2,"record_id":"nisin","length":900,"cds_count":9,"computed_at":"2024-05-01T12:30:00Z"}`,
		"syntax":    `[`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.Regenerate(json.RawMessage(payload), rec, cfg)
			assert.True(t, errors.Is(err, module.ErrMalformedPayload), "got %v", err)
		})
	}
}

func TestWriteOutputsIsIdempotent(t *testing.T) {
	m, rec, prior, cfg := setup(t)
	res, err := m.RunFresh(context.Background(), rec, prior, cfg)
	require.NoError(t, err)

	dir := filepath.Join(cfg.OutputDir, OutputDir, rec.ID)
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err), "RunFresh must not write")

	require.NoError(t, res.WriteOutputs(rec, cfg))
	first, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	firstJSON, err := os.ReadFile(filepath.Join(dir, "composition.json"))
	require.NoError(t, err)

	require.NoError(t, res.WriteOutputs(rec, cfg))
	second, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	secondJSON, err := os.ReadFile(filepath.Join(dir, "composition.json"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstJSON, secondJSON)

	store := artifact.NewStore(cfg.OutputDir)
	check, err := store.Check(artifact.Document(ID+"/summary", "record summary", OutputDir, rec.ID, "summary.md"))
	require.NoError(t, err)
	assert.Equal(t, artifact.StateReady, check.State)
	assert.Equal(t, rec.ID, check.Metadata.Record)
	assert.Contains(t, string(first), "| regulatory | 2 |")
}

func TestEnabledUnlessMinimal(t *testing.T) {
	m, _, _, cfg := setup(t)
	assert.True(t, m.IsEnabled(cfg))
	cfg.Minimal = true
	assert.False(t, m.IsEnabled(cfg))
	assert.True(t, m.IsEnabled(cfg.WithOption(OptEnable, true)))
}
