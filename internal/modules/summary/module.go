// Package summary writes a per-record composition report: sequence length,
// GC content, CDS count and the gene-function histogram.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kingrea/helix/internal/artifact"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/modules/genefunctions"
	"github.com/kingrea/helix/internal/record"
)

const (
	ID        = "helix.modules.summary"
	OutputDir = "summary"
	OptEnable = "enable-summary"

	version       = "1"
	payloadSchema = 1
)

// Module produces record summaries.
type Module struct {
	module.Base
	clock func() time.Time
}

var (
	_ module.Module         = (*Module)(nil)
	_ module.ArtifactLister = (*Result)(nil)
)

// Option customizes the module.
type Option func(*Module)

// WithClock sets the time stamped on freshly computed summaries.
func WithClock(clock func() time.Time) Option {
	return func(m *Module) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// New constructs the module.
func New(opts ...Option) *Module {
	m := &Module{
		Base: module.NewBase(module.Info{
			ID:          ID,
			Name:        "Record summary",
			Description: "Summarises sequence composition and gene functions per record",
			Version:     version,
			DependsOn:   []string{genefunctions.ID},
			OutputDir:   OutputDir,
		}),
		clock: time.Now,
	}
	m.SetOptions(config.Option{Name: OptEnable, Type: config.TypeBool, Default: false, Help: "write record summaries even with --minimal"})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsEnabled reports whether summaries are written.
func (m *Module) IsEnabled(cfg config.Config) bool {
	return cfg.Bool(OptEnable) || !cfg.Minimal
}

// RunFresh computes the summary from the record and its gene functions.
func (m *Module) RunFresh(ctx context.Context, rec *record.Record, prior module.Prior, _ config.Config) (module.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	classified, ok := module.Lookup[*genefunctions.Result](prior, genefunctions.ID)
	if !ok {
		return nil, module.ExecutionError(ID, rec.ID, fmt.Errorf("no %s result for record", genefunctions.ID))
	}
	functions := map[string]int{}
	for _, cds := range rec.CDSFeatures() {
		fn := record.FunctionOther
		if hit, ok := classified.Hits[cds.Name]; ok {
			fn = hit.Function
		}
		functions[string(fn)]++
	}
	return &Result{
		RecordID:   rec.ID,
		Length:     len(rec.Sequence),
		GC:         rec.GCContent(),
		CDSCount:   len(rec.CDS),
		Functions:  functions,
		ComputedAt: m.clock().UTC().Truncate(time.Second),
	}, nil
}

// Regenerate restores a summary, rejecting payloads that no longer describe
// the record.
func (m *Module) Regenerate(payload json.RawMessage, rec *record.Record, _ config.Config) (module.Result, error) {
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, module.MalformedPayload(ID, rec.ID, err)
	}
	switch {
	case res.Schema != payloadSchema:
		return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("unsupported schema %d", res.Schema))
	case res.RecordID != rec.ID:
		return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("payload belongs to record %q", res.RecordID))
	case res.CDSCount != len(rec.CDS):
		return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("payload counts %d cds, record has %d", res.CDSCount, len(rec.CDS)))
	case res.Length != len(rec.Sequence):
		return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("payload length %d differs from record", res.Length))
	case res.ComputedAt.IsZero():
		return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("computed_at is required"))
	}
	if res.Functions == nil {
		res.Functions = map[string]int{}
	}
	return &res, nil
}

// Result is one record's summary. It doubles as the archive payload.
type Result struct {
	Schema     int            `json:"schema"`
	RecordID   string         `json:"record_id"`
	Length     int            `json:"length"`
	GC         float64        `json:"gc"`
	CDSCount   int            `json:"cds_count"`
	Functions  map[string]int `json:"functions"`
	ComputedAt time.Time      `json:"computed_at"`
}

// ModuleID implements module.Result.
func (r *Result) ModuleID() string { return ID }

// Serialize implements module.Result.
func (r *Result) Serialize() (json.RawMessage, error) {
	out := *r
	out.Schema = payloadSchema
	if out.Functions == nil {
		out.Functions = map[string]int{}
	}
	return json.Marshal(out)
}

// AddToRecord is a no-op: summaries annotate no features.
func (r *Result) AddToRecord(*record.Record) error { return nil }

// WriteOutputs replaces <out>/summary/<record>/ with summary.md and
// composition.json. Both are stamped with the computation time so rewriting
// the same result yields the same bytes.
func (r *Result) WriteOutputs(rec *record.Record, cfg config.Config) error {
	store := artifact.NewStore(cfg.OutputDir)
	if _, err := store.Reset(artifact.Directory(ID, "record summary", OutputDir, rec.ID)); err != nil {
		return module.WriteError(ID, rec.ID, err)
	}
	meta := artifact.Metadata{
		ModuleID:  ID,
		Version:   version,
		Record:    rec.ID,
		Inputs:    []string{genefunctions.ID},
		CreatedAt: r.ComputedAt,
	}
	refs := r.Artifacts(rec)
	if err := store.Write(refs[0], r.markdown(rec), meta); err != nil {
		return module.WriteError(ID, rec.ID, err)
	}
	body, err := json.Marshal(map[string]any{
		"record_id": r.RecordID,
		"length":    r.Length,
		"gc":        r.GC,
		"cds_count": r.CDSCount,
		"functions": r.Functions,
	})
	if err != nil {
		return module.WriteError(ID, rec.ID, err)
	}
	if err := store.Write(refs[1], body, meta); err != nil {
		return module.WriteError(ID, rec.ID, err)
	}
	return nil
}

// Artifacts lists summary.md and composition.json, in write order.
func (r *Result) Artifacts(rec *record.Record) []artifact.ArtifactRef {
	return []artifact.ArtifactRef{
		artifact.Document(ID+"/summary", "record summary", OutputDir, rec.ID, "summary.md"),
		artifact.JSON(ID+"/composition", "composition", OutputDir, rec.ID, "composition.json"),
	}
}

func (r *Result) markdown(rec *record.Record) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", r.RecordID)
	if rec.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", rec.Description)
	}
	fmt.Fprintf(&b, "- Length: %d bp\n", r.Length)
	fmt.Fprintf(&b, "- GC content: %.2f%%\n", r.GC*100)
	fmt.Fprintf(&b, "- CDS features: %d\n\n", r.CDSCount)
	b.WriteString("| Function | CDS |\n|---|---|\n")
	for _, fn := range r.FunctionNames() {
		fmt.Fprintf(&b, "| %s | %d |\n", fn, r.Functions[fn])
	}
	return b.Bytes()
}

// FunctionNames returns the histogram keys, most frequent first.
func (r *Result) FunctionNames() []string {
	names := make([]string, 0, len(r.Functions))
	for name := range r.Functions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if r.Functions[names[i]] != r.Functions[names[j]] {
			return r.Functions[names[i]] > r.Functions[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
