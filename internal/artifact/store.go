package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const metadataKey = "_helix"

// Store manages artifact IO rooted at the run's output directory.
type Store struct {
	root string
	now  func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store rooted at dir.
func NewStore(root string, opts ...StoreOption) *Store {
	store := &Store{
		root: root,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Path resolves ref below the store root.
func (s *Store) Path(ref ArtifactRef) string {
	return ref.Path(s.root)
}

// Reset removes whatever is at the directory ref points to and recreates it
// empty. Owned directories are replaced, never merged.
func (s *Store) Reset(ref ArtifactRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if ref.Kind != KindDirectory {
		return "", fmt.Errorf("artifact: reset requires a directory, %s is %s", ref.ID, ref.Kind)
	}
	path := s.Path(ref)
	if filepath.Clean(path) == filepath.Clean(s.root) {
		return "", fmt.Errorf("artifact: refusing to reset the output directory for %s", ref.ID)
	}
	if err := os.RemoveAll(path); err != nil {
		return "", fmt.Errorf("artifact: clear %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create %s: %w", path, err)
	}
	return path, nil
}

// Check inspects the artifact on disk and returns its status and metadata.
func (s *Store) Check(ref ArtifactRef) (CheckResult, error) {
	if err := ref.Validate(); err != nil {
		return CheckResult{Ref: ref, State: StateError, Err: err}, err
	}
	path := s.Path(ref)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	if ref.Kind == KindDirectory {
		if !info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: expected directory"))
		}
		return CheckResult{Ref: ref, Path: path, State: StateReady}, nil
	}
	if info.IsDir() {
		return invalidResult(ref, path, fmt.Errorf("artifact: expected file got directory"))
	}
	if ref.Kind == KindBinary {
		return CheckResult{Ref: ref, Path: path, State: StateReady}, nil
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: readErr}, readErr
	}
	var meta Metadata
	if ref.Kind == KindJSON {
		meta, err = parseJSONMetadata(data)
	} else {
		var body []byte
		meta, body, err = ParseFrontMatter(data)
		if err == nil && meta.Checksum != "" && meta.Checksum != Checksum(body) {
			err = ErrChecksumMismatch
		}
	}
	if err != nil {
		return invalidResult(ref, path, err)
	}
	if meta.ArtifactID != ref.ID {
		return invalidResult(ref, path, fmt.Errorf("artifact: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
}

// Write persists the artifact contents and metadata based on its kind.
func (s *Store) Write(ref ArtifactRef, body []byte, meta Metadata) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	path := s.Path(ref)
	switch ref.Kind {
	case KindDirectory:
		return os.MkdirAll(path, 0o755)
	case KindBinary:
		return WriteFileAtomic(path, body, 0o644)
	case KindJSON:
		return s.writeJSON(path, ref, body, meta)
	default:
		return s.writeDocument(path, ref, body, meta)
	}
}

func (s *Store) writeDocument(path string, ref ArtifactRef, body []byte, meta Metadata) error {
	if body == nil {
		body = []byte{}
	}
	prepared := meta.WithDefaults(ref, s.now())
	if err := prepared.ValidateFor(ref); err != nil {
		return err
	}
	prepared.Checksum = Checksum(body)
	content, err := WriteFrontMatter(prepared, body)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, content, 0o644)
}

func (s *Store) writeJSON(path string, ref ArtifactRef, body []byte, meta Metadata) error {
	if body == nil {
		body = []byte("{}")
	}
	prepared := meta.WithDefaults(ref, s.now())
	if err := prepared.ValidateFor(ref); err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("artifact: invalid json body for %s: %w", ref.ID, err)
	}
	if payload == nil {
		return fmt.Errorf("artifact: json body for %s must be an object", ref.ID)
	}
	payload[metadataKey] = newJSONMetadata(prepared)
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode json for %s: %w", ref.ID, err)
	}
	return WriteFileAtomic(path, append(encoded, '\n'), 0o644)
}

// WriteFileAtomic writes data to a temporary sibling and renames it over path
// so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: ensure dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("artifact: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("artifact: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("artifact: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("artifact: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("artifact: rename %s: %w", path, err)
	}
	return nil
}

func invalidResult(ref ArtifactRef, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}

type jsonMetadata struct {
	Artifact string            `json:"artifact"`
	Module   string            `json:"module"`
	Version  string            `json:"version"`
	Record   string            `json:"record,omitempty"`
	Inputs   []string          `json:"inputs,omitempty"`
	Created  string            `json:"created"`
	Checksum string            `json:"checksum,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

func newJSONMetadata(meta Metadata) jsonMetadata {
	return jsonMetadata{
		Artifact: meta.ArtifactID,
		Module:   meta.ModuleID,
		Version:  meta.Version,
		Record:   meta.Record,
		Inputs:   append([]string{}, meta.Inputs...),
		Created:  meta.CreatedAt.UTC().Format(time.RFC3339),
		Checksum: meta.Checksum,
		Notes:    cloneNotes(meta.Notes),
	}
}

func parseJSONMetadata(data []byte) (Metadata, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse json metadata: %w", err)
	}
	raw, ok := payload[metadataKey]
	if !ok {
		return Metadata{}, fmt.Errorf("artifact: missing %s metadata", metadataKey)
	}
	var block jsonMetadata
	if err := json.Unmarshal(raw, &block); err != nil {
		return Metadata{}, fmt.Errorf("artifact: invalid %s metadata structure: %w", metadataKey, err)
	}
	if block.Artifact == "" || block.Module == "" || block.Version == "" {
		return Metadata{}, fmt.Errorf("artifact: incomplete metadata")
	}
	created, err := parseTime(block.Created)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		ArtifactID: block.Artifact,
		ModuleID:   block.Module,
		Version:    block.Version,
		Record:     block.Record,
		Inputs:     block.Inputs,
		CreatedAt:  created,
		Checksum:   block.Checksum,
		Notes:      cloneNotes(block.Notes),
	}, nil
}
