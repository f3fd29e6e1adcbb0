// Package artifact defines the filesystem-level contracts for files modules
// write under the output directory. Each artifact has a stable identifier, a
// kind, and a path relative to the output root.

package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind captures the storage shape and serialization format for an artifact.
type Kind string

const (
	// KindDocument represents a markdown-like text document with YAML frontmatter.
	KindDocument Kind = "document"
	// KindJSON represents a JSON document enriched with a _helix metadata block.
	KindJSON Kind = "json"
	// KindBinary represents opaque bytes such as images or rendered HTML.
	KindBinary Kind = "binary"
	// KindDirectory represents a directory that must exist.
	KindDirectory Kind = "directory"
)

// ArtifactRef declares a stable identifier and location for an artifact.
type ArtifactRef struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	// RelPath is relative to the store root.
	RelPath string
}

// Path resolves the artifact path below root.
func (r ArtifactRef) Path(root string) string {
	if r.RelPath == "" {
		return ""
	}
	return filepath.Join(root, filepath.FromSlash(r.RelPath))
}

// Validate ensures the reference is well-formed.
func (r ArtifactRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.RelPath == "" {
		return fmt.Errorf("artifact: path missing for %s", r.ID)
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(r.RelPath)))
	if filepath.IsAbs(r.RelPath) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("artifact: path for %s escapes the output directory", r.ID)
	}
	if clean == "." {
		return fmt.Errorf("artifact: path for %s resolves to the output directory itself", r.ID)
	}
	return nil
}

// Document declares a frontmatter document reference.
func Document(id, name string, elems ...string) ArtifactRef {
	return newRef(id, name, KindDocument, elems)
}

// JSON declares a JSON artifact reference.
func JSON(id, name string, elems ...string) ArtifactRef {
	return newRef(id, name, KindJSON, elems)
}

// Binary declares an opaque file reference.
func Binary(id, name string, elems ...string) ArtifactRef {
	return newRef(id, name, KindBinary, elems)
}

// Directory declares a directory reference.
func Directory(id, name string, elems ...string) ArtifactRef {
	return newRef(id, name, KindDirectory, elems)
}

func newRef(id, name string, kind Kind, elems []string) ArtifactRef {
	return ArtifactRef{ID: id, Name: name, Kind: kind, RelPath: filepath.ToSlash(filepath.Join(elems...))}
}

// Metadata captures provenance stored inside artifact frontmatter or metadata blocks.
type Metadata struct {
	ArtifactID string
	ModuleID   string
	Version    string
	Record     string
	Inputs     []string
	CreatedAt  time.Time
	Checksum   string
	Notes      map[string]string
}

// WithDefaults ensures metadata carries the artifact ID and timestamps.
func (m Metadata) WithDefaults(ref ArtifactRef, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the artifact contract.
func (m Metadata) ValidateFor(ref ArtifactRef) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("artifact: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.ModuleID == "" {
		return fmt.Errorf("artifact: module id is required for %s", ref.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("artifact: version is required for %s", ref.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      ArtifactRef
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}
