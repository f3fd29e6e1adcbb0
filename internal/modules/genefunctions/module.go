package genefunctions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/record"
)

const (
	// ID identifies the module.
	ID = "helix.detection.genefunctions"
	// Tool is the annotation source name attached to CDS features.
	Tool = "smcogs"
	// OptData overrides the embedded reference table.
	OptData = "genefunctions-data"

	payloadSchema = 1
)

// Module classifies CDS features.
type Module struct {
	module.Base
	refs *References
}

var _ module.Module = (*Module)(nil)

// Option customizes the module.
type Option func(*Module)

// WithReferences shares a reference cache with other modules.
func WithReferences(refs *References) Option {
	return func(m *Module) {
		if refs != nil {
			m.refs = refs
		}
	}
}

// New constructs the module.
func New(opts ...Option) *Module {
	m := &Module{
		Base: module.NewBase(module.Info{
			ID:          ID,
			Name:        "Gene functions",
			Description: "Classifies CDS features into smCOG families and gene-function categories",
			Version:     "1",
		}),
		refs: NewReferences(),
	}
	m.SetOptions(config.Option{Name: OptData, Type: config.TypeString, Default: "", Help: "smCOG reference table to use instead of the bundled one"})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// References returns the module's reference cache.
func (m *Module) References() *References {
	return m.refs
}

// CheckReadiness ensures the reference table can be loaded.
func (m *Module) CheckReadiness(cfg config.Config) []error {
	if _, err := m.refs.Load(cfg.String(OptData)); err != nil {
		return []error{module.ReadinessError(ID, err)}
	}
	return nil
}

// RunFresh classifies every CDS by product.
func (m *Module) RunFresh(ctx context.Context, rec *record.Record, _ module.Prior, cfg config.Config) (module.Result, error) {
	ref, err := m.refs.Load(cfg.String(OptData))
	if err != nil {
		return nil, module.ExecutionError(ID, rec.ID, err)
	}
	res := &Result{RecordID: rec.ID, Hits: map[string]Hit{}}
	for _, cds := range rec.CDSFeatures() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fam, ok := ref.Classify(cds.Product)
		if !ok {
			continue
		}
		res.Hits[cds.Name] = Hit{SMCOG: fam.ID, Description: fam.Description, Function: fam.Function}
	}
	return res, nil
}

// Regenerate rebuilds a result from its payload.
func (m *Module) Regenerate(payload json.RawMessage, rec *record.Record, _ config.Config) (module.Result, error) {
	var p resultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, module.MalformedPayload(ID, rec.ID, err)
	}
	if p.Schema != payloadSchema {
		return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("unsupported schema %d", p.Schema))
	}
	if p.RecordID != rec.ID {
		return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("payload belongs to record %q", p.RecordID))
	}
	hits := make(map[string]Hit, len(p.Hits))
	for name, hit := range p.Hits {
		if _, ok := rec.CDSByName(name); !ok {
			return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("unknown cds %s", name))
		}
		if hit.SMCOG == "" || !hit.Function.Valid() {
			return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("invalid hit for cds %s", name))
		}
		hits[name] = hit
	}
	return &Result{RecordID: p.RecordID, Hits: hits}, nil
}

// Hit is the classification of one CDS.
type Hit struct {
	SMCOG       string              `json:"smcog"`
	Description string              `json:"description"`
	Function    record.GeneFunction `json:"function"`
}

// Result holds the classified CDS features of one record.
type Result struct {
	RecordID string
	Hits     map[string]Hit
}

type resultPayload struct {
	Schema   int            `json:"schema"`
	RecordID string         `json:"record_id"`
	Hits     map[string]Hit `json:"hits"`
}

// ModuleID implements module.Result.
func (r *Result) ModuleID() string { return ID }

// Serialize implements module.Result. Map keys are emitted sorted.
func (r *Result) Serialize() (json.RawMessage, error) {
	hits := r.Hits
	if hits == nil {
		hits = map[string]Hit{}
	}
	return json.Marshal(resultPayload{Schema: payloadSchema, RecordID: r.RecordID, Hits: hits})
}

// AddToRecord attaches a gene-function annotation and smCOG qualifier to every
// classified CDS, replacing earlier values from this tool.
func (r *Result) AddToRecord(rec *record.Record) error {
	for _, name := range r.CDSNames() {
		hit := r.Hits[name]
		ann := record.GeneFunctionAnnotation{Function: hit.Function, Description: hit.SMCOG + ": " + hit.Description}
		if err := rec.SetGeneFunctions(name, Tool, []record.GeneFunctionAnnotation{ann}); err != nil {
			return err
		}
		if err := rec.SetQualifier(name, record.QualifierSMCOG, hit.SMCOG+" ("+hit.Description+")"); err != nil {
			return err
		}
	}
	return nil
}

// WriteOutputs implements module.Result. Classifications live in the archive
// and the HTML report only.
func (r *Result) WriteOutputs(*record.Record, config.Config) error {
	return nil
}

// CDSNames returns classified CDS names in sorted order.
func (r *Result) CDSNames() []string {
	names := make([]string, 0, len(r.Hits))
	for name := range r.Hits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

