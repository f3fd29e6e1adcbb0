// Package archive persists the per-record module payloads of a completed run
// so a later run can reuse them. An archive is read wholesale and written
// once per run; it is never patched in place.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/helix/internal/artifact"
	"github.com/kingrea/helix/internal/record"
)

// SchemaVersion is the archive layout this build reads and writes.
const SchemaVersion = 1

// ErrNotFound is returned when the archive file does not exist.
var ErrNotFound = errors.New("archive: not found")

// Miss explains why a cached payload could not be used.
type Miss string

const (
	MissNone    Miss = ""
	MissRecord  Miss = "record-missing"
	MissModule  Miss = "module-missing"
	MissVersion Miss = "version-mismatch"
)

// Archive maps record identity to module payloads for one run.
type Archive struct {
	Schema      int       `json:"schema"`
	RunID       string    `json:"run_id"`
	Created     time.Time `json:"created"`
	ToolVersion string    `json:"tool_version"`
	Records     []Entry   `json:"records"`

	index map[string]int
}

// Entry holds everything archived for one record.
type Entry struct {
	ID       string                     `json:"id"`
	Record   json.RawMessage            `json:"record"`
	Modules  map[string]json.RawMessage `json:"modules"`
	Versions map[string]string          `json:"versions,omitempty"`
}

// NewEntry seeds an entry with the serialized record.
func NewEntry(rec *record.Record) (Entry, error) {
	if err := rec.Validate(); err != nil {
		return Entry{}, fmt.Errorf("archive: %w", err)
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return Entry{}, fmt.Errorf("archive: encode record %s: %w", rec.ID, err)
	}
	return Entry{ID: rec.ID, Record: encoded, Modules: map[string]json.RawMessage{}, Versions: map[string]string{}}, nil
}

// SetModule stores a module payload and the module version that produced it.
func (e *Entry) SetModule(moduleID, version string, payload json.RawMessage) {
	if e.Modules == nil {
		e.Modules = map[string]json.RawMessage{}
	}
	if e.Versions == nil {
		e.Versions = map[string]string{}
	}
	e.Modules[moduleID] = append(json.RawMessage(nil), payload...)
	e.Versions[moduleID] = version
}

// Load reads and validates an archive file.
func Load(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("archive: read %s: %w", path, err)
	}
	arc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return arc, nil
}

// Parse decodes an archive document. Payloads are compacted so they compare
// byte-for-byte with what Result.Serialize produced.
func Parse(data []byte) (*Archive, error) {
	var arc Archive
	if err := json.Unmarshal(data, &arc); err != nil {
		return nil, fmt.Errorf("archive: parse: %w", err)
	}
	if arc.Schema != SchemaVersion {
		return nil, fmt.Errorf("archive: unsupported schema %d (want %d)", arc.Schema, SchemaVersion)
	}
	arc.index = make(map[string]int, len(arc.Records))
	for i := range arc.Records {
		entry := &arc.Records[i]
		if strings.TrimSpace(entry.ID) == "" {
			return nil, fmt.Errorf("archive: records[%d] id is required", i)
		}
		if _, dup := arc.index[entry.ID]; dup {
			return nil, fmt.Errorf("archive: duplicate record %s", entry.ID)
		}
		arc.index[entry.ID] = i
		if len(entry.Record) > 0 {
			compacted, err := compact(entry.Record)
			if err != nil {
				return nil, fmt.Errorf("archive: record %s: %w", entry.ID, err)
			}
			entry.Record = compacted
		}
		for moduleID, payload := range entry.Modules {
			compacted, err := compact(payload)
			if err != nil {
				return nil, fmt.Errorf("archive: record %s module %s: %w", entry.ID, moduleID, err)
			}
			entry.Modules[moduleID] = compacted
		}
	}
	return &arc, nil
}

// Save writes the archive atomically.
func Save(path string, arc *Archive) error {
	if arc == nil {
		return fmt.Errorf("archive: nil archive")
	}
	encoded, err := json.MarshalIndent(arc, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode: %w", err)
	}
	if err := artifact.WriteFileAtomic(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// Lookup returns the payload a module stored for a record. A payload written
// by a different module version counts as a miss.
func (a *Archive) Lookup(recordID, moduleID, version string) (json.RawMessage, Miss) {
	entry, ok := a.Entry(recordID)
	if !ok {
		return nil, MissRecord
	}
	payload, ok := entry.Modules[moduleID]
	if !ok {
		return nil, MissModule
	}
	if stored, ok := entry.Versions[moduleID]; ok && version != "" && stored != version {
		return nil, MissVersion
	}
	return append(json.RawMessage(nil), payload...), MissNone
}

// Entry returns the archived entry for a record.
func (a *Archive) Entry(recordID string) (Entry, bool) {
	if a == nil {
		return Entry{}, false
	}
	if a.index == nil {
		a.reindex()
	}
	idx, ok := a.index[recordID]
	if !ok {
		return Entry{}, false
	}
	return a.Records[idx], true
}

// RecordIDs lists archived record identifiers in archive order.
func (a *Archive) RecordIDs() []string {
	ids := make([]string, 0, len(a.Records))
	for _, entry := range a.Records {
		ids = append(ids, entry.ID)
	}
	return ids
}

// DecodeRecords rebuilds the input records stored in the archive, letting a
// run resume without the original input files.
func (a *Archive) DecodeRecords() ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(a.Records))
	for _, entry := range a.Records {
		if len(entry.Record) == 0 {
			return nil, fmt.Errorf("archive: record %s has no stored input", entry.ID)
		}
		var rec record.Record
		if err := json.Unmarshal(entry.Record, &rec); err != nil {
			return nil, fmt.Errorf("archive: decode record %s: %w", entry.ID, err)
		}
		if rec.ID != entry.ID {
			return nil, fmt.Errorf("archive: record id %s stored under %s", rec.ID, entry.ID)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (a *Archive) reindex() {
	a.index = make(map[string]int, len(a.Records))
	for i, entry := range a.Records {
		a.index[entry.ID] = i
	}
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Builder collects entries from concurrent record workers.
type Builder struct {
	mu      sync.Mutex
	arc     Archive
	entries map[string]Entry
}

// NewBuilder starts an archive for a run.
func NewBuilder(runID, toolVersion string, created time.Time) *Builder {
	return &Builder{
		arc: Archive{
			Schema:      SchemaVersion,
			RunID:       runID,
			Created:     created.UTC(),
			ToolVersion: toolVersion,
		},
		entries: map[string]Entry{},
	}
}

// Add stores a record's entry. Each record may be added once.
func (b *Builder) Add(entry Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("archive: entry id is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.entries[entry.ID]; dup {
		return fmt.Errorf("archive: record %s added twice", entry.ID)
	}
	b.entries[entry.ID] = entry
	return nil
}

// Build returns the archive with entries sorted by record ID.
func (b *Builder) Build() *Archive {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	arc := b.arc
	arc.Records = make([]Entry, 0, len(ids))
	for _, id := range ids {
		arc.Records = append(arc.Records, b.entries[id])
	}
	arc.reindex()
	return &arc
}
