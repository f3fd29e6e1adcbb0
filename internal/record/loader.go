package record

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type recordFile struct {
	Records []*Record `yaml:"records"`
	Record  `yaml:",inline"`
}

// Parse decodes one or more records from YAML or JSON bytes. A document may
// hold a single record at the top level or a `records` list. fallbackID names
// a single top-level record that omits its id.
func Parse(data []byte, fallbackID string) ([]*Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("record: payload is empty")
	}
	var file recordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("record: decode: %w", err)
	}
	records := file.Records
	if len(records) == 0 {
		single := file.Record
		if strings.TrimSpace(single.ID) == "" {
			single.ID = fallbackID
		}
		records = []*Record{&single}
	}
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("record: duplicate record id %s", rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	return records, nil
}

// LoadFile loads records from a file path. A single unnamed record takes the
// file stem as its id.
func LoadFile(path string) ([]*Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("record: read %s: %w", path, err)
	}
	records, err := Parse(content, Stem(path))
	if err != nil {
		return nil, fmt.Errorf("record: %s: %w", path, err)
	}
	return records, nil
}

// LoadFiles loads every path in order and rejects ids repeated across files.
func LoadFiles(paths ...string) ([]*Record, error) {
	var all []*Record
	seen := map[string]string{}
	for _, path := range paths {
		records, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if other, dup := seen[rec.ID]; dup {
				return nil, fmt.Errorf("record: id %s appears in %s and %s", rec.ID, other, path)
			}
			seen[rec.ID] = path
		}
		all = append(all, records...)
	}
	return all, nil
}

// Stem returns the file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
