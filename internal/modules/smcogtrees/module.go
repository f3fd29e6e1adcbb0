package smcogtrees

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os/exec"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/helix/internal/artifact"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/modules/genefunctions"
	"github.com/kingrea/helix/internal/record"
)

const (
	// ID identifies the module.
	ID = "helix.modules.smcog_trees"
	// OutputDir is the directory under the output root the module owns.
	OutputDir = "smcogs"

	OptEnable   = "smcog-trees"
	OptTool     = "smcog-trees-tool"
	OptAttempts = "smcog-trees-attempts"
	OptTimeout  = "smcog-trees-timeout"

	payloadSchema = 1
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Module builds smCOG trees.
type Module struct {
	module.Base
	builder TreeBuilder
	refs    *genefunctions.References
	logger  *zap.Logger
}

var (
	_ module.Module         = (*Module)(nil)
	_ module.ArtifactLister = (*Result)(nil)
)

// Option customizes the module.
type Option func(*Module)

// WithBuilder replaces the tree builder regardless of configuration.
func WithBuilder(b TreeBuilder) Option {
	return func(m *Module) {
		m.builder = b
	}
}

// WithReferences checks readiness against the gene functions module's
// reference cache.
func WithReferences(refs *genefunctions.References) Option {
	return func(m *Module) {
		if refs != nil {
			m.refs = refs
		}
	}
}

// WithLogger sets the logger handed to external tool builders.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New constructs the module.
func New(opts ...Option) *Module {
	m := &Module{
		Base: module.NewBase(module.Info{
			ID:          ID,
			Name:        "smCOG trees",
			Description: "Builds a phylogenetic tree image for every smCOG-classified CDS",
			Version:     "1",
			DependsOn:   []string{genefunctions.ID},
			OutputDir:   OutputDir,
		}),
		refs:   genefunctions.NewReferences(),
		logger: zap.NewNop(),
	}
	m.SetOptions(
		config.Option{Name: OptEnable, Type: config.TypeBool, Default: false, Help: "generate phylogenetic trees of smCOG-classified genes"},
		config.Option{Name: OptTool, Type: config.TypeString, Default: "", Help: "external tree tool (reads FASTA on stdin, prints newick); built-in builder when empty"},
		config.Option{Name: OptAttempts, Type: config.TypeInt, Default: 3, Help: "attempts per tree when the external tool fails"},
		config.Option{Name: OptTimeout, Type: config.TypeInt, Default: 60, Help: "seconds allowed per external tool invocation"},
	)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsEnabled reports whether trees were requested.
func (m *Module) IsEnabled(cfg config.Config) bool {
	return cfg.Bool(OptEnable)
}

// CheckOptions validates retry settings.
func (m *Module) CheckOptions(cfg config.Config) []error {
	var errs []error
	if cfg.Int(OptAttempts) < 1 {
		errs = append(errs, module.OptionError(ID, fmt.Errorf("--%s must be >= 1", OptAttempts)))
	}
	if cfg.Int(OptTimeout) < 0 {
		errs = append(errs, module.OptionError(ID, fmt.Errorf("--%s must not be negative", OptTimeout)))
	}
	return errs
}

// CheckReadiness requires the smCOG reference and, when configured, the
// external tool.
func (m *Module) CheckReadiness(cfg config.Config) []error {
	var errs []error
	if _, err := m.refs.Load(cfg.String(genefunctions.OptData)); err != nil {
		errs = append(errs, module.ReadinessError(ID, err))
	}
	if tool := cfg.String(OptTool); tool != "" && m.builder == nil {
		if _, err := exec.LookPath(tool); err != nil {
			errs = append(errs, module.ReadinessError(ID, fmt.Errorf("tree tool %s not found: %w", tool, err)))
		}
	}
	return errs
}

func (m *Module) treeBuilder(cfg config.Config) TreeBuilder {
	if m.builder != nil {
		return m.builder
	}
	if tool := cfg.String(OptTool); tool != "" {
		return ExecBuilder{
			Path:     tool,
			Attempts: cfg.Int(OptAttempts),
			Timeout:  time.Duration(cfg.Int(OptTimeout)) * time.Second,
			Logger:   m.logger,
		}
	}
	return BuiltinBuilder{}
}

// RunFresh builds a tree for every CDS the gene functions module classified.
func (m *Module) RunFresh(ctx context.Context, rec *record.Record, prior module.Prior, cfg config.Config) (module.Result, error) {
	classified, ok := module.Lookup[*genefunctions.Result](prior, genefunctions.ID)
	if !ok {
		return nil, module.ExecutionError(ID, rec.ID, fmt.Errorf("no %s result for record", genefunctions.ID))
	}
	names := classified.CDSNames()
	if err := uniqueImages(rec.ID, names); err != nil {
		return nil, module.ExecutionError(ID, rec.ID, err)
	}
	builder := m.treeBuilder(cfg)
	res := &Result{RecordID: rec.ID, Trees: map[string]Tree{}}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cds, ok := rec.CDSByName(name)
		if !ok {
			return nil, module.ExecutionError(ID, rec.ID, fmt.Errorf("classified cds %s missing from record", name))
		}
		smcog := classified.Hits[name].SMCOG
		newick, err := builder.Build(ctx, smcog, cds)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, module.ExecutionError(ID, rec.ID, fmt.Errorf("tree for %s: %w", name, err))
		}
		res.Trees[name] = Tree{SMCOG: smcog, Newick: newick}
	}
	return res, nil
}

// Regenerate rebuilds a result from cached trees without invoking a builder.
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
	trees := make(map[string]Tree, len(p.Trees))
	for name, tree := range p.Trees {
		if _, ok := rec.CDSByName(name); !ok {
			return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("unknown cds %s", name))
		}
		newick := strings.TrimSpace(tree.Newick)
		if tree.SMCOG == "" || !strings.HasSuffix(newick, ";") {
			return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("invalid tree for cds %s", name))
		}
		if _, err := parseLeaves(newick); err != nil {
			return nil, module.MalformedPayload(ID, rec.ID, fmt.Errorf("tree for cds %s: %w", name, err))
		}
		trees[name] = tree
	}
	res := &Result{RecordID: p.RecordID, Trees: trees}
	if err := uniqueImages(rec.ID, res.CDSNames()); err != nil {
		return nil, module.MalformedPayload(ID, rec.ID, err)
	}
	return res, nil
}

// Tree is the cached tree of one CDS.
type Tree struct {
	SMCOG  string `json:"smcog"`
	Newick string `json:"newick"`
}

// Result holds the trees built for one record.
type Result struct {
	RecordID string
	Trees    map[string]Tree
}

type resultPayload struct {
	Schema   int             `json:"schema"`
	RecordID string          `json:"record_id"`
	Trees    map[string]Tree `json:"trees"`
}

// ModuleID implements module.Result.
func (r *Result) ModuleID() string { return ID }

// Serialize implements module.Result.
func (r *Result) Serialize() (json.RawMessage, error) {
	trees := r.Trees
	if trees == nil {
		trees = map[string]Tree{}
	}
	return json.Marshal(resultPayload{Schema: payloadSchema, RecordID: r.RecordID, Trees: trees})
}

// AddToRecord points each CDS at its tree image, relative to the output root.
func (r *Result) AddToRecord(rec *record.Record) error {
	for _, name := range r.CDSNames() {
		if err := rec.SetQualifier(name, record.QualifierSMCOGTree, ImagePath(rec.ID, name)); err != nil {
			return err
		}
	}
	return nil
}

// WriteOutputs replaces <out>/smcogs/<record>/ with one PNG per tree.
func (r *Result) WriteOutputs(rec *record.Record, cfg config.Config) error {
	store := artifact.NewStore(cfg.OutputDir)
	if _, err := store.Reset(artifact.Directory(ID, "smCOG trees", OutputDir, rec.ID)); err != nil {
		return module.WriteError(ID, rec.ID, err)
	}
	for _, name := range r.CDSNames() {
		img, err := renderTree(r.Trees[name].Newick)
		if err != nil {
			return module.WriteError(ID, rec.ID, fmt.Errorf("render %s: %w", name, err))
		}
		if err := store.Write(imageRef(rec.ID, name), img, artifact.Metadata{}); err != nil {
			return module.WriteError(ID, rec.ID, err)
		}
	}
	return nil
}

// Artifacts lists one image per tree.
func (r *Result) Artifacts(rec *record.Record) []artifact.ArtifactRef {
	names := r.CDSNames()
	refs := make([]artifact.ArtifactRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, imageRef(rec.ID, name))
	}
	return refs
}

func imageRef(recordID, cdsName string) artifact.ArtifactRef {
	return artifact.Binary(ID+"/"+cdsName, "smCOG tree "+cdsName, ImagePath(recordID, cdsName))
}

// CDSNames returns the CDS names with trees in sorted order.
func (r *Result) CDSNames() []string {
	names := make([]string, 0, len(r.Trees))
	for name := range r.Trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImagePath is the slash-separated image location relative to the output root.
// A name that had to be sanitized keeps a hash of the original, so "nis B"
// and "nis_B" get different files.
func ImagePath(recordID, cdsName string) string {
	file := unsafeFileChars.ReplaceAllString(cdsName, "_")
	if file != cdsName {
		h := fnv.New32a()
		_, _ = h.Write([]byte(cdsName))
		file = fmt.Sprintf("%s-%08x", file, h.Sum32())
	}
	return path.Join(OutputDir, recordID, file+".png")
}

// uniqueImages rejects CDS names whose images would share a file, including
// on case-insensitive filesystems.
func uniqueImages(recordID string, names []string) error {
	seen := make(map[string]string, len(names))
	for _, name := range names {
		key := strings.ToLower(ImagePath(recordID, name))
		if other, ok := seen[key]; ok {
			return fmt.Errorf("cds %s and %s map to the same image %s", other, name, ImagePath(recordID, name))
		}
		seen[key] = name
	}
	return nil
}
