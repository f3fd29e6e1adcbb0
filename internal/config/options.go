package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
)

// Core flag names shared by every command that runs the pipeline.
const (
	FlagOutputDir    = "output-dir"
	FlagArchiveName  = "archive-name"
	FlagReuseResults = "reuse-results"
	FlagCPUs         = "cpus"
	FlagMinimal      = "minimal"
	FlagAbortOnError = "abort-on-error"
	FlagTaxon        = "taxon"
	FlagVerbose      = "verbose"
)

// OptionType enumerates the value kinds a module option may take.
type OptionType string

const (
	TypeBool   OptionType = "bool"
	TypeString OptionType = "string"
	TypeInt    OptionType = "int"
)

// Option declares one named module option.
type Option struct {
	Name    string
	Type    OptionType
	Default any
	Help    string
}

// OptionSet groups the options a single module contributes.
type OptionSet struct {
	Group   string
	Options []Option
}

// Validate ensures names are present and defaults match their declared type.
func (s OptionSet) Validate() error {
	for _, opt := range s.Options {
		if strings.TrimSpace(opt.Name) == "" {
			return fmt.Errorf("config: %s: option name is required", s.Group)
		}
		if opt.Default == nil {
			continue
		}
		if _, err := coerce(opt, opt.Default); err != nil {
			return fmt.Errorf("config: %s: default for %s: %w", s.Group, opt.Name, err)
		}
	}
	return nil
}

// Bind registers every option as a flag on fs.
func (s OptionSet) Bind(fs *pflag.FlagSet) {
	for _, opt := range s.Options {
		if fs.Lookup(opt.Name) != nil {
			continue
		}
		switch opt.Type {
		case TypeBool:
			def, _ := opt.Default.(bool)
			fs.Bool(opt.Name, def, opt.Help)
		case TypeInt:
			def, _ := opt.Default.(int)
			fs.Int(opt.Name, def, opt.Help)
		default:
			def, _ := opt.Default.(string)
			fs.String(opt.Name, def, opt.Help)
		}
	}
}

// BindCore registers the flags every pipeline command accepts.
func BindCore(fs *pflag.FlagSet) {
	fs.StringP(FlagOutputDir, "o", DefaultOutputDir, "directory for results, reports and the archive")
	fs.String(FlagArchiveName, "", "archive file stem (defaults to the first input's stem)")
	fs.String(FlagReuseResults, "", "archive from a previous run to reuse results from")
	fs.Int(FlagCPUs, runtime.NumCPU(), "number of records processed in parallel")
	fs.Bool(FlagMinimal, false, "only run core modules unless a module is explicitly enabled")
	fs.Bool(FlagAbortOnError, false, "stop the run at the first module failure")
	fs.String(FlagTaxon, DefaultTaxon, "taxonomic group of the input ("+strings.Join(Taxa, ", ")+")")
}

// Build resolves the final configuration. Explicitly set flags take priority
// over the project file, which takes priority over flag defaults.
func Build(project ProjectConfig, fs *pflag.FlagSet, sets []OptionSet) (Config, error) {
	cfg := Default()

	if project.OutputDir != "" {
		cfg.OutputDir = project.OutputDir
	}
	if project.ArchiveName != "" {
		cfg.ArchiveName = project.ArchiveName
	}
	if project.CPUs > 0 {
		cfg.CPUs = project.CPUs
	}
	if project.Minimal != nil {
		cfg.Minimal = *project.Minimal
	}
	if project.AbortOnError != nil {
		cfg.AbortOnError = *project.AbortOnError
	}
	if project.Taxon != "" {
		cfg.Taxon = project.Taxon
	}

	if fs != nil {
		if err := applyCoreFlags(&cfg, fs); err != nil {
			return Config{}, err
		}
	}

	known := map[string]Option{}
	values := map[string]any{}
	for _, set := range sets {
		if err := set.Validate(); err != nil {
			return Config{}, err
		}
		for _, opt := range set.Options {
			if _, dup := known[opt.Name]; dup {
				return Config{}, fmt.Errorf("config: option %s declared twice", opt.Name)
			}
			known[opt.Name] = opt
			if opt.Default != nil {
				values[opt.Name] = opt.Default
			}
		}
	}
	for name, raw := range project.Options {
		opt, ok := known[name]
		if !ok {
			return Config{}, fmt.Errorf("config: unknown option %s", name)
		}
		value, err := coerce(opt, raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: option %s: %w", name, err)
		}
		values[name] = value
	}
	if fs != nil {
		for name, opt := range known {
			flag := fs.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			value, err := flagValue(fs, opt)
			if err != nil {
				return Config{}, fmt.Errorf("config: flag --%s: %w", name, err)
			}
			values[name] = value
		}
	}
	cfg.values = values

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyCoreFlags(cfg *Config, fs *pflag.FlagSet) error {
	changed := func(name string) bool {
		flag := fs.Lookup(name)
		return flag != nil && flag.Changed
	}
	var err error
	if changed(FlagOutputDir) {
		if cfg.OutputDir, err = fs.GetString(FlagOutputDir); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if changed(FlagArchiveName) {
		if cfg.ArchiveName, err = fs.GetString(FlagArchiveName); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if fs.Lookup(FlagReuseResults) != nil {
		if cfg.ReuseResults, err = fs.GetString(FlagReuseResults); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if changed(FlagCPUs) {
		if cfg.CPUs, err = fs.GetInt(FlagCPUs); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if changed(FlagMinimal) {
		if cfg.Minimal, err = fs.GetBool(FlagMinimal); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if changed(FlagAbortOnError) {
		if cfg.AbortOnError, err = fs.GetBool(FlagAbortOnError); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if changed(FlagTaxon) {
		taxon, err := fs.GetString(FlagTaxon)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg.Taxon = strings.ToLower(strings.TrimSpace(taxon))
	}
	if fs.Lookup(FlagVerbose) != nil {
		if cfg.Verbose, err = fs.GetBool(FlagVerbose); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func flagValue(fs *pflag.FlagSet, opt Option) (any, error) {
	switch opt.Type {
	case TypeBool:
		return fs.GetBool(opt.Name)
	case TypeInt:
		return fs.GetInt(opt.Name)
	default:
		return fs.GetString(opt.Name)
	}
}

func coerce(opt Option, raw any) (any, error) {
	switch opt.Type {
	case TypeBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return v, nil
	case TypeInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int(v), nil
		default:
			return nil, fmt.Errorf("expected int, got %T", raw)
		}
	case TypeString, "":
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported option type %q", opt.Type)
	}
}
