package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/pipeline"
	"github.com/kingrea/helix/internal/record"
	"github.com/kingrea/helix/internal/record/recordtest"
)

func htmlConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Build(config.ProjectConfig{Version: 1}, nil, []config.OptionSet{NewHTML().Options()})
	require.NoError(t, err)
	cfg.OutputDir = t.TempDir()
	cfg.ArchiveName = "nisin"
	return cfg
}

func TestStripLeadingWhitespace(t *testing.T) {
	got := stripLeadingWhitespace([]byte("\n  <html>\n\t\t<body>\n\n   \n</body>\n"))
	assert.Equal(t, "<html>\n<body>\n</body>\n", string(got))
}

func TestHTMLEnablement(t *testing.T) {
	h := NewHTML()
	cfg := htmlConfig(t)
	assert.True(t, h.IsEnabled(cfg))
	cfg.Minimal = true
	assert.False(t, h.IsEnabled(cfg))
	assert.True(t, h.IsEnabled(cfg.WithOption(OptEnableHTML, true)))
}

func TestHTMLChecks(t *testing.T) {
	cfg := htmlConfig(t)
	assert.Empty(t, NewHTML().CheckReadiness(cfg))
	assert.Empty(t, NewHTML().CheckOptions(cfg))
	assert.Len(t, NewHTML().CheckOptions(cfg.WithOption(OptHTMLTitle, "two\nlines")), 1)

	partial := newHTML(fstest.MapFS{
		"templates/index.html.tmpl": {Data: []byte("<html></html>")},
		"css/fungi.css":             {Data: []byte("body{}")},
	})
	errs := partial.CheckReadiness(cfg)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], module.ErrReadiness))
}

func TestHTMLWriteCopiesOnlyTaxonStylesheet(t *testing.T) {
	cfg := htmlConfig(t)
	cfg.Taxon = "fungi"
	rec := recordtest.Nisin(t)

	cssDir := filepath.Join(cfg.OutputDir, "css")
	require.NoError(t, os.MkdirAll(cssDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cssDir, "old.css"), []byte("x"), 0o644))

	report := pipeline.Report{RunID: "run-7"}
	require.NoError(t, NewHTML().Write(nil, nil, report, cfg.WithOption(OptHTMLTitle, "Custom title")))
	require.NoError(t, NewHTML().Write(nil, nil, report, cfg))

	entries, err := os.ReadDir(cssDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fungi.css", entries[0].Name())

	page := buildPage(nil, nil, report, cfg.WithOption(OptHTMLNCBIContext, true))
	assert.Equal(t, "nisin", page.Title)
	assert.Empty(t, page.Records)

	page = buildPage(nil, []*record.Record{rec}, report, cfg.WithOption(OptHTMLNCBIContext, true))
	require.Len(t, page.Records, 1)
	assert.Len(t, page.Records[0].CDS, 9)
	assert.Contains(t, page.Records[0].CDS[0].NCBILink, "nuccore/nisin")
	assert.Equal(t, "1-171 (+)", page.Records[0].CDS[0].Location)

	for _, dir := range []string{"js", "images"} {
		entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, dir))
		require.NoError(t, err)
		assert.NotEmpty(t, entries, dir)
	}
}
