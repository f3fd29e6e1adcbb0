package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOptions = []OptionSet{{
	Group: "smcog_trees",
	Options: []Option{
		{Name: "smcog-trees", Type: TypeBool, Default: false, Help: "build trees"},
		{Name: "smcog-trees-attempts", Type: TypeInt, Default: 3, Help: "attempts"},
		{Name: "html-title", Type: TypeString, Default: "", Help: "title"},
	},
}}

func newFlagSet(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindCore(fs)
	for _, set := range testOptions {
		set.Bind(fs)
	}
	return fs
}

func TestLoadProjectConfigDefaultsWhenPathEmpty(t *testing.T) {
	pc, err := LoadProjectConfig("")
	require.NoError(t, err)
	assert.Equal(t, 1, pc.Version)
	assert.Empty(t, pc.Options)
}

func TestLoadProjectConfigMissingFile(t *testing.T) {
	_, err := LoadProjectConfig(filepath.Join(t.TempDir(), "helix.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	dir := t.TempDir()
	configYAML := strings.TrimSpace(`
version: 1
output_dir: out
cpus: 2
minimal: true
taxon: Fungi
options:
  --smcog-trees: true
  smcog-trees-attempts: 5
`)
	path := filepath.Join(dir, "helix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))

	pc, err := LoadProjectConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out"), pc.OutputDir)
	assert.Equal(t, 2, pc.CPUs)
	require.NotNil(t, pc.Minimal)
	assert.True(t, *pc.Minimal)
	assert.Equal(t, "fungi", pc.Taxon)
	assert.Equal(t, true, pc.Options["smcog-trees"])
}

func TestLoadProjectConfigValidation(t *testing.T) {
	cases := map[string]string{
		"taxon":   "taxon: archaea\n",
		"cpus":    "cpus: -1\n",
		"archive": "archive_name: a/b\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "helix.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadProjectConfig(path)
			require.Error(t, err)
		})
	}
}

func TestBuildPrefersChangedFlagsOverProject(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--cpus", "1", "--smcog-trees-attempts", "7"}))

	minimal := true
	project := ProjectConfig{
		Version:   1,
		OutputDir: "/tmp/project-out",
		CPUs:      4,
		Minimal:   &minimal,
		Options:   map[string]any{"smcog-trees": true, "smcog-trees-attempts": 2},
	}
	cfg, err := Build(project, fs, testOptions)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/project-out", cfg.OutputDir)
	assert.Equal(t, 1, cfg.CPUs)
	assert.True(t, cfg.Minimal)
	assert.True(t, cfg.Bool("smcog-trees"))
	assert.Equal(t, 7, cfg.Int("smcog-trees-attempts"))
	assert.Equal(t, "", cfg.String("html-title"))
	assert.Equal(t, DefaultArchiveName, cfg.ArchiveName)
}

func TestBuildRejectsUnknownProjectOption(t *testing.T) {
	project := defaultProjectConfig()
	project.Options["no-such-option"] = true
	_, err := Build(project, nil, testOptions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown option")
}

func TestBuildRejectsMistypedProjectOption(t *testing.T) {
	project := defaultProjectConfig()
	project.Options["smcog-trees"] = "yes"
	_, err := Build(project, nil, testOptions)
	require.Error(t, err)
}

func TestBuildRejectsDuplicateOptions(t *testing.T) {
	sets := append([]OptionSet{}, testOptions...)
	sets = append(sets, OptionSet{Group: "dup", Options: []Option{{Name: "smcog-trees", Type: TypeBool}}})
	_, err := Build(defaultProjectConfig(), nil, sets)
	require.Error(t, err)
}

func TestWithOptionDoesNotMutateReceiver(t *testing.T) {
	base, err := Build(defaultProjectConfig(), nil, testOptions)
	require.NoError(t, err)
	changed := base.WithOption("smcog-trees", true)
	assert.False(t, base.Bool("smcog-trees"))
	assert.True(t, changed.Bool("smcog-trees"))
}

func TestConfigPaths(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/out"
	cfg.ArchiveName = "nisin"
	assert.Equal(t, "/out/nisin.json", cfg.ArchivePath())
	assert.Equal(t, "/out/logs", cfg.LogsDir())
}

func TestConfigValidate(t *testing.T) {
	cfg := Default()
	cfg.CPUs = 0
	require.Error(t, cfg.Validate())
	cfg = Default()
	cfg.Taxon = "archaea"
	require.Error(t, cfg.Validate())
	require.NoError(t, Default().Validate())
}
