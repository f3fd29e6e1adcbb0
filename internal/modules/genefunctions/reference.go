package genefunctions

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/helix/internal/record"
)

//go:embed data/smcogs.yaml
var defaultReference []byte

// Family is one smCOG reference family.
type Family struct {
	ID          string              `yaml:"id"`
	Description string              `yaml:"description"`
	Function    record.GeneFunction `yaml:"function"`
	Keywords    []string            `yaml:"keywords"`
}

// Reference is the classification table.
type Reference struct {
	Version  string   `yaml:"version"`
	Families []Family `yaml:"families"`
}

// Classify returns the first family whose keyword occurs in product.
func (r *Reference) Classify(product string) (Family, bool) {
	product = strings.ToLower(product)
	if strings.TrimSpace(product) == "" {
		return Family{}, false
	}
	for _, fam := range r.Families {
		for _, kw := range fam.Keywords {
			if strings.Contains(product, kw) {
				return fam, true
			}
		}
	}
	return Family{}, false
}

// ParseReference decodes and validates a reference table.
func ParseReference(data []byte) (*Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("genefunctions: parse reference: %w", err)
	}
	if len(ref.Families) == 0 {
		return nil, fmt.Errorf("genefunctions: reference has no families")
	}
	seen := map[string]struct{}{}
	for i := range ref.Families {
		fam := &ref.Families[i]
		if fam.ID == "" {
			return nil, fmt.Errorf("genefunctions: families[%d] id is required", i)
		}
		if _, dup := seen[fam.ID]; dup {
			return nil, fmt.Errorf("genefunctions: duplicate family %s", fam.ID)
		}
		seen[fam.ID] = struct{}{}
		if !fam.Function.Valid() {
			return nil, fmt.Errorf("genefunctions: family %s has unknown function %q", fam.ID, fam.Function)
		}
		if len(fam.Keywords) == 0 {
			return nil, fmt.Errorf("genefunctions: family %s has no keywords", fam.ID)
		}
		for k, kw := range fam.Keywords {
			fam.Keywords[k] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	return &ref, nil
}

// References loads reference tables and caches them by path. Parsed tables
// are never mutated, so callers may share them.
type References struct {
	mu    sync.Mutex
	cache map[string]*Reference
}

// NewReferences returns an empty cache.
func NewReferences() *References {
	return &References{cache: map[string]*Reference{}}
}

// Load returns the table at path, or the embedded table when path is empty.
func (r *References) Load(path string) (*Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.cache[path]; ok {
		return ref, nil
	}
	ref, err := LoadReference(path)
	if err != nil {
		return nil, err
	}
	r.cache[path] = ref
	return ref, nil
}

// LoadReference reads and parses the table at path, or the embedded table
// when path is empty.
func LoadReference(path string) (*Reference, error) {
	data := defaultReference
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("genefunctions: read reference %s: %w", path, err)
		}
		data = content
	}
	return ParseReference(data)
}
