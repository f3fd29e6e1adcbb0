package module

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kingrea/helix/internal/artifact"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/record"
)

// Info describes a module's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
	// DependsOn lists modules whose results must be applied to a record
	// before this module runs on it.
	DependsOn []string
	// OutputDir is the subdirectory of the output directory the module owns.
	// Empty when the module writes nothing.
	OutputDir string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("module: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("module: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("module: version is required for %s", i.ID)
	}
	for _, dep := range i.DependsOn {
		if dep == i.ID {
			return fmt.Errorf("module: %s depends on itself", i.ID)
		}
	}
	if i.OutputDir != "" {
		if strings.ContainsAny(i.OutputDir, `/\`) || i.OutputDir == "." || i.OutputDir == ".." {
			return fmt.Errorf("module: output dir %q for %s must be a single path segment", i.OutputDir, i.ID)
		}
	}
	return nil
}

// Checker is the part of the contract evaluated before any record is
// processed. Output plugins implement only this half.
type Checker interface {
	Info() Info
	Options() config.OptionSet
	// CheckReadiness reports missing external data. Any error blocks the run.
	CheckReadiness(cfg config.Config) []error
	// CheckOptions validates user supplied option values.
	CheckOptions(cfg config.Config) []error
	// IsEnabled is a pure predicate over configuration.
	IsEnabled(cfg config.Config) bool
}

// Module is implemented by every analysis stage.
type Module interface {
	Checker
	// RunFresh computes a result for the record. prior holds results of
	// earlier modules already applied to rec. Implementations must not mutate
	// rec or touch the filesystem.
	RunFresh(ctx context.Context, rec *record.Record, prior Prior, cfg config.Config) (Result, error)
	// Regenerate rebuilds a result from a payload produced by Serialize
	// without recomputing it. Structurally invalid payloads, or payloads
	// referencing entities rec no longer has, yield a MalformedPayload error.
	Regenerate(payload json.RawMessage, rec *record.Record, cfg config.Config) (Result, error)
}

// Result is the in-memory outcome of one module on one record.
type Result interface {
	ModuleID() string
	// Serialize returns the canonical payload. Equal results produce equal
	// bytes.
	Serialize() (json.RawMessage, error)
	// AddToRecord applies findings to rec. Repeated calls leave rec unchanged.
	AddToRecord(rec *record.Record) error
	// WriteOutputs is the only operation allowed to touch the filesystem. It
	// replaces whatever an earlier run left in the module's directory.
	WriteOutputs(rec *record.Record, cfg config.Config) error
}

// ArtifactLister is implemented by results that can name the files their
// WriteOutputs produces, so the files can be checked without rewriting them.
type ArtifactLister interface {
	Artifacts(rec *record.Record) []artifact.ArtifactRef
}
