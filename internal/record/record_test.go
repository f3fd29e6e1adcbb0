package record_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/helix/internal/record"
	"github.com/kingrea/helix/internal/record/recordtest"
)

func TestNisinFixtureLoads(t *testing.T) {
	rec := recordtest.Nisin(t)
	assert.Equal(t, "nisin", rec.ID)
	assert.Len(t, rec.CDS, 9)
	assert.Len(t, rec.Sequence, 900)
	assert.InDelta(t, 0.5, rec.GCContent(), 0.2)
}

func TestSetGeneFunctionsIsIdempotent(t *testing.T) {
	rec := recordtest.Nisin(t)
	ann := []record.GeneFunctionAnnotation{{Function: record.FunctionTransport, Description: "SMCOG1288"}}

	require.NoError(t, rec.SetGeneFunctions("nisT", "smcogs", ann))
	require.NoError(t, rec.SetGeneFunctions("nisT", "smcogs", ann))

	assert.Equal(t, record.FunctionTransport, rec.GeneFunction("nisT"))
	assert.Equal(t, record.FunctionOther, rec.GeneFunction("nisA"))

	require.NoError(t, rec.SetGeneFunctions("nisT", "smcogs", nil))
	assert.Equal(t, record.FunctionOther, rec.GeneFunction("nisT"))
	require.Error(t, rec.SetGeneFunctions("missing", "smcogs", ann))
}

func TestQualifiers(t *testing.T) {
	rec := recordtest.Nisin(t)
	require.NoError(t, rec.SetQualifier("nisB", record.QualifierSMCOG, "SMCOG1155"))
	require.NoError(t, rec.SetQualifier("nisB", record.QualifierSMCOG, "SMCOG1155"))
	value, ok := rec.Qualifier("nisB", record.QualifierSMCOG)
	require.True(t, ok)
	assert.Equal(t, "SMCOG1155", value)
	_, ok = rec.Qualifier("nisA", record.QualifierSMCOG)
	assert.False(t, ok)
	require.Error(t, rec.SetQualifier("missing", "k", "v"))
}

func TestValidate(t *testing.T) {
	cases := map[string]*record.Record{
		"missing id":   {},
		"unnamed cds":  {ID: "r", CDS: []*record.CDSFeature{{Start: 0, End: 3}}},
		"bad location": {ID: "r", CDS: []*record.CDSFeature{{Name: "a", Start: 5, End: 3}}},
		"past end":     {ID: "r", Sequence: "ATG", CDS: []*record.CDSFeature{{Name: "a", Start: 0, End: 6}}},
		"bad strand":   {ID: "r", CDS: []*record.CDSFeature{{Name: "a", Start: 0, End: 3, Strand: 2}}},
		"duplicate":    {ID: "r", CDS: []*record.CDSFeature{{Name: "a", Start: 0, End: 3}, {Name: "a", Start: 3, End: 6}}},
		"bad region":   {ID: "r", Regions: []record.Region{{Start: 4, End: 4}}},
		"dot id":       {ID: "."},
		"parent id":    {ID: ".."},
		"nested id":    {ID: "nisin/x"},
		"backslash id": {ID: `nisin\x`},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, rec.Validate())
		})
	}
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"nisin", "NC_003888.3", "..nisin", "a b"} {
		assert.NoError(t, record.ValidateID(id), id)
	}
	for _, id := range []string{".", "..", "a/b", `a\b`, "../nisin"} {
		assert.Error(t, record.ValidateID(id), id)
	}
}

func TestParseMultipleRecords(t *testing.T) {
	doc := strings.TrimSpace(`
records:
  - id: a
    sequence: ATGATG
  - id: b
`)
	records, err := record.Parse([]byte(doc), "ignored")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1].ID)

	_, err = record.Parse([]byte("records:\n  - id: a\n  - id: a\n"), "x")
	require.Error(t, err)
	_, err = record.Parse([]byte("  "), "x")
	require.Error(t, err)
}

func TestLoadFileUsesStemAndAcceptsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster42.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sequence": "ATGC", "cds": [{"name": "x", "start": 0, "end": 3, "strand": 1}]}`), 0o644))

	records, err := record.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cluster42", records[0].ID)
	assert.Equal(t, "cluster42", record.Stem(path))
}

func TestLoadFilesRejectsRepeatedIDs(t *testing.T) {
	dir := t.TempDir()
	first := recordtest.WriteNisin(t, dir)
	other := filepath.Join(dir, "copy.yaml")
	content, err := os.ReadFile(first)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(other, content, 0o644))

	_, err = record.LoadFiles(first, other)
	require.Error(t, err)
}
