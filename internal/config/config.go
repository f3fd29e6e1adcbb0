// internal/config/config.go
//
// This package builds the single immutable configuration a run uses. Values
// come from three layers: built-in defaults, an optional project YAML file,
// and command-line flags. Flags the user set explicitly always win.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultOutputDir is used when neither the project file nor a flag names one.
	DefaultOutputDir = "helix_output"
	// DefaultArchiveName is the archive stem used when no input names one.
	DefaultArchiveName = "results"
	// DefaultTaxon selects the stylesheet set and taxon-specific behaviour.
	DefaultTaxon = "bacteria"

	logsDir = "logs"
)

// Taxa lists the supported taxonomic groups.
var Taxa = []string{"bacteria", "fungi", "plants"}

// ProjectConfig models the optional helix.yaml project file.
type ProjectConfig struct {
	Version      int            `yaml:"version"`
	OutputDir    string         `yaml:"output_dir,omitempty"`
	ArchiveName  string         `yaml:"archive_name,omitempty"`
	CPUs         int            `yaml:"cpus,omitempty"`
	Minimal      *bool          `yaml:"minimal,omitempty"`
	AbortOnError *bool          `yaml:"abort_on_error,omitempty"`
	Taxon        string         `yaml:"taxon,omitempty"`
	Options      map[string]any `yaml:"options,omitempty"`
}

// Config is the immutable run configuration. It is passed by value; option
// values are only reachable through the typed getters.
type Config struct {
	OutputDir    string
	ArchiveName  string
	ReuseResults string
	CPUs         int
	Minimal      bool
	AbortOnError bool
	Verbose      bool
	Taxon        string

	values map[string]any
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		OutputDir:   DefaultOutputDir,
		ArchiveName: DefaultArchiveName,
		CPUs:        runtime.NumCPU(),
		Taxon:       DefaultTaxon,
	}
}

// LoadProjectConfig reads a project file. An empty path yields the defaults.
func LoadProjectConfig(path string) (ProjectConfig, error) {
	cfg := defaultProjectConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: project file %s does not exist", path)
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	parsed.normalize(filepath.Dir(path))
	if err := parsed.validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return parsed, nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{Version: 1, Options: map[string]any{}}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Options == nil {
		pc.Options = map[string]any{}
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.OutputDir = resolvePath(base, pc.OutputDir)
	pc.ArchiveName = strings.TrimSpace(pc.ArchiveName)
	pc.Taxon = strings.ToLower(strings.TrimSpace(pc.Taxon))
	normalized := make(map[string]any, len(pc.Options))
	for name, value := range pc.Options {
		normalized[strings.TrimPrefix(strings.TrimSpace(name), "--")] = value
	}
	pc.Options = normalized
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.CPUs < 0 {
		return fmt.Errorf("cpus must be positive")
	}
	if pc.Taxon != "" && !validTaxon(pc.Taxon) {
		return fmt.Errorf("taxon must be one of %s", strings.Join(Taxa, ", "))
	}
	if strings.ContainsAny(pc.ArchiveName, `/\`) {
		return fmt.Errorf("archive_name must not contain path separators")
	}
	return nil
}

// Validate checks the fields every run depends on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("config: output dir is required")
	}
	if strings.TrimSpace(c.ArchiveName) == "" {
		return fmt.Errorf("config: archive name is required")
	}
	if strings.ContainsAny(c.ArchiveName, `/\`) {
		return fmt.Errorf("config: archive name %q must not contain path separators", c.ArchiveName)
	}
	if c.CPUs < 1 {
		return fmt.Errorf("config: cpus must be >= 1, got %d", c.CPUs)
	}
	if !validTaxon(c.Taxon) {
		return fmt.Errorf("config: taxon %q must be one of %s", c.Taxon, strings.Join(Taxa, ", "))
	}
	return nil
}

// ArchivePath returns where this run's results archive is written.
func (c Config) ArchivePath() string {
	return filepath.Join(c.OutputDir, c.ArchiveName+".json")
}

// LogsDir returns the directory holding the run log.
func (c Config) LogsDir() string {
	return filepath.Join(c.OutputDir, logsDir)
}

// Bool returns a boolean option, false when unset.
func (c Config) Bool(name string) bool {
	v, _ := c.values[name].(bool)
	return v
}

// String returns a string option, "" when unset.
func (c Config) String(name string) string {
	v, _ := c.values[name].(string)
	return v
}

// Int returns an integer option, 0 when unset.
func (c Config) Int(name string) int {
	v, _ := c.values[name].(int)
	return v
}

// WithOption returns a copy of the configuration with one option replaced.
// The receiver is left untouched.
func (c Config) WithOption(name string, value any) Config {
	values := make(map[string]any, len(c.values)+1)
	for k, v := range c.values {
		values[k] = v
	}
	values[name] = value
	c.values = values
	return c
}

func validTaxon(taxon string) bool {
	for _, t := range Taxa {
		if t == taxon {
			return true
		}
	}
	return false
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
