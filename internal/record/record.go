// Package record defines the unit of input processed by the pipeline: an
// identifiable sequence record with CDS features. Modules attach findings to a
// record through per-tool annotations, which are held in memory only and never
// serialized with the record itself.
package record

import (
	"fmt"
	"sort"
	"strings"
)

// GeneFunction classifies the role a CDS plays inside a biosynthetic region.
type GeneFunction string

const (
	FunctionOther      GeneFunction = "other"
	FunctionCore       GeneFunction = "biosynthetic"
	FunctionAdditional GeneFunction = "biosynthetic-additional"
	FunctionTransport  GeneFunction = "transport"
	FunctionRegulatory GeneFunction = "regulatory"
	FunctionResistance GeneFunction = "resistance"
)

// Qualifier keys shared between modules and reports.
const (
	QualifierSMCOG     = "smcog"
	QualifierSMCOGTree = "smcog_tree"
)

// Valid reports whether the function is one of the known categories.
func (f GeneFunction) Valid() bool {
	switch f {
	case FunctionOther, FunctionCore, FunctionAdditional, FunctionTransport, FunctionRegulatory, FunctionResistance:
		return true
	default:
		return false
	}
}

// GeneFunctionAnnotation is a single classification attached by a tool.
type GeneFunctionAnnotation struct {
	Function    GeneFunction
	Tool        string
	Description string
}

// CDSFeature is a coding sequence on the record.
type CDSFeature struct {
	Name        string `json:"name" yaml:"name"`
	LocusTag    string `json:"locus_tag,omitempty" yaml:"locus_tag,omitempty"`
	Product     string `json:"product,omitempty" yaml:"product,omitempty"`
	Start       int    `json:"start" yaml:"start"`
	End         int    `json:"end" yaml:"end"`
	Strand      int    `json:"strand" yaml:"strand"`
	Translation string `json:"translation,omitempty" yaml:"translation,omitempty"`
}

// Region is a labelled range of interest on the record.
type Region struct {
	Number  int    `json:"number" yaml:"number"`
	Start   int    `json:"start" yaml:"start"`
	End     int    `json:"end" yaml:"end"`
	Product string `json:"product,omitempty" yaml:"product,omitempty"`
}

// Record is the identifiable unit of input. Only the input-level fields are
// serialized; annotations added by modules live in memory.
type Record struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Taxon       string        `json:"taxon,omitempty" yaml:"taxon,omitempty"`
	Sequence    string        `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	CDS         []*CDSFeature `json:"cds,omitempty" yaml:"cds,omitempty"`
	Regions     []Region      `json:"regions,omitempty" yaml:"regions,omitempty"`

	functions  map[string]map[string][]GeneFunctionAnnotation
	qualifiers map[string]map[string]string
}

// Validate ensures the record is usable by the pipeline.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("record: nil record")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record: id is required")
	}
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(r.CDS))
	for idx, cds := range r.CDS {
		if cds == nil {
			return fmt.Errorf("record %s: cds[%d] is empty", r.ID, idx)
		}
		if strings.TrimSpace(cds.Name) == "" {
			return fmt.Errorf("record %s: cds[%d] name is required", r.ID, idx)
		}
		if _, dup := seen[cds.Name]; dup {
			return fmt.Errorf("record %s: duplicate cds name %s", r.ID, cds.Name)
		}
		seen[cds.Name] = struct{}{}
		if cds.Start < 0 || cds.End <= cds.Start {
			return fmt.Errorf("record %s: cds %s has invalid location %d..%d", r.ID, cds.Name, cds.Start, cds.End)
		}
		if r.Sequence != "" && cds.End > len(r.Sequence) {
			return fmt.Errorf("record %s: cds %s extends past sequence end", r.ID, cds.Name)
		}
		switch cds.Strand {
		case -1, 0, 1:
		default:
			return fmt.Errorf("record %s: cds %s has invalid strand %d", r.ID, cds.Name, cds.Strand)
		}
	}
	for idx, region := range r.Regions {
		if region.End <= region.Start {
			return fmt.Errorf("record %s: region[%d] has invalid location", r.ID, idx)
		}
	}
	return nil
}

// ValidateID rejects identifiers that cannot name a single directory. Record
// IDs become path elements under every module's output directory.
func ValidateID(id string) error {
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("record: id %q is not a valid directory name", id)
	}
	return nil
}

// CDSFeatures returns the record's coding sequences in declaration order.
func (r *Record) CDSFeatures() []*CDSFeature {
	out := make([]*CDSFeature, len(r.CDS))
	copy(out, r.CDS)
	return out
}

// CDSByName looks up a CDS by its name.
func (r *Record) CDSByName(name string) (*CDSFeature, bool) {
	for _, cds := range r.CDS {
		if cds.Name == name {
			return cds, true
		}
	}
	return nil, false
}

// SetGeneFunctions replaces every annotation a tool attached to a CDS.
// Replacing instead of appending keeps repeated application idempotent.
func (r *Record) SetGeneFunctions(cdsName, tool string, annotations []GeneFunctionAnnotation) error {
	if _, ok := r.CDSByName(cdsName); !ok {
		return fmt.Errorf("record %s: unknown cds %s", r.ID, cdsName)
	}
	if r.functions == nil {
		r.functions = map[string]map[string][]GeneFunctionAnnotation{}
	}
	byTool := r.functions[cdsName]
	if byTool == nil {
		byTool = map[string][]GeneFunctionAnnotation{}
		r.functions[cdsName] = byTool
	}
	if len(annotations) == 0 {
		delete(byTool, tool)
		return nil
	}
	cloned := make([]GeneFunctionAnnotation, len(annotations))
	for i, ann := range annotations {
		ann.Tool = tool
		cloned[i] = ann
	}
	byTool[tool] = cloned
	return nil
}

// GeneFunction returns the most specific function any tool assigned to the CDS,
// or FunctionOther.
func (r *Record) GeneFunction(cdsName string) GeneFunction {
	byTool := r.functions[cdsName]
	if len(byTool) == 0 {
		return FunctionOther
	}
	tools := make([]string, 0, len(byTool))
	for tool := range byTool {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		for _, ann := range byTool[tool] {
			if ann.Function != FunctionOther {
				return ann.Function
			}
		}
	}
	return FunctionOther
}

// SetQualifier stores a single named value against a CDS, overwriting any
// previous value for the key.
func (r *Record) SetQualifier(cdsName, key, value string) error {
	if _, ok := r.CDSByName(cdsName); !ok {
		return fmt.Errorf("record %s: unknown cds %s", r.ID, cdsName)
	}
	if r.qualifiers == nil {
		r.qualifiers = map[string]map[string]string{}
	}
	values := r.qualifiers[cdsName]
	if values == nil {
		values = map[string]string{}
		r.qualifiers[cdsName] = values
	}
	values[key] = value
	return nil
}

// Qualifier returns a previously stored CDS qualifier.
func (r *Record) Qualifier(cdsName, key string) (string, bool) {
	value, ok := r.qualifiers[cdsName][key]
	return value, ok
}

// GCContent returns the fraction of G and C bases in the sequence.
func (r *Record) GCContent() float64 {
	if len(r.Sequence) == 0 {
		return 0
	}
	var gc, total int
	for _, base := range strings.ToUpper(r.Sequence) {
		switch base {
		case 'G', 'C', 'S':
			gc++
			total++
		case 'A', 'T', 'U', 'W':
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(gc) / float64(total)
}
