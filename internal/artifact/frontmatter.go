package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
	// ErrChecksumMismatch indicates the body changed after it was written.
	ErrChecksumMismatch = errors.New("artifact: checksum mismatch")
)

const (
	fence     = "---\n"
	bodySplit = "\n---\n\n"
)

// ParseFrontMatter extracts the metadata block and body from a document that
// starts with `---` YAML fences. The body is returned exactly as it was
// passed to WriteFrontMatter.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte(fence)) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[len(fence):]
	idx := bytes.Index(rest, []byte(bodySplit))
	if idx < 0 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var envelope helixEnvelope
	if err := yaml.Unmarshal(rest[:idx], &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: parse frontmatter: %w", err)
	}
	meta, err := envelope.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, rest[idx+len(bodySplit):], nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.ArtifactID == "" {
		return nil, fmt.Errorf("artifact: metadata missing artifact id")
	}
	envelope := helixEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fence)
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString(bodySplit)
	buf.Write(body)
	return buf.Bytes(), nil
}

// Checksum returns the hex sha256 of body.
func Checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type helixEnvelope struct {
	Helix helixMetadata `yaml:"helix"`
}

type helixMetadata struct {
	Artifact string            `yaml:"artifact"`
	Module   string            `yaml:"module"`
	Version  string            `yaml:"version"`
	Record   string            `yaml:"record,omitempty"`
	Inputs   []string          `yaml:"inputs,omitempty"`
	Created  string            `yaml:"created"`
	Checksum string            `yaml:"checksum,omitempty"`
	Notes    map[string]string `yaml:"notes,omitempty"`
}

func (e helixEnvelope) toMetadata() (Metadata, error) {
	m := e.Helix
	if m.Artifact == "" || m.Module == "" || m.Version == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(m.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse created timestamp: %w", err)
	}
	return Metadata{
		ArtifactID: m.Artifact,
		ModuleID:   m.Module,
		Version:    m.Version,
		Record:     m.Record,
		Inputs:     append([]string{}, m.Inputs...),
		CreatedAt:  created,
		Checksum:   m.Checksum,
		Notes:      cloneNotes(m.Notes),
	}, nil
}

func (e *helixEnvelope) fromMetadata(meta Metadata) {
	e.Helix = helixMetadata{
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

func cloneNotes(notes map[string]string) map[string]string {
	if len(notes) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(notes))
	for k, v := range notes {
		cloned[k] = v
	}
	return cloned
}

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("artifact: empty created timestamp")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
