// Package recordtest provides record fixtures shared by package tests.
package recordtest

import (
	_ "embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/kingrea/helix/internal/record"
)

//go:embed nisin.yaml
var nisinYAML []byte

// NisinClassified is how many nisin CDS features the bundled smCOG table
// classifies.
const NisinClassified = 7

// Nisin returns a fresh copy of the nisin cluster record.
func Nisin(t testing.TB) *record.Record {
	t.Helper()
	records, err := record.Parse(nisinYAML, "nisin")
	if err != nil {
		t.Fatalf("parse nisin fixture: %v", err)
	}
	return records[0]
}

// WriteNisin writes the fixture into dir and returns its path.
func WriteNisin(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "nisin.yaml")
	if err := os.WriteFile(path, nisinYAML, 0o644); err != nil {
		t.Fatalf("write nisin fixture: %v", err)
	}
	return path
}
