package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestStoreDocumentRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), WithClock(fixedClock))
	ref := Document("summary", "Summary", "summary", "nisin", "summary.md")
	body := []byte("# nisin\n\nGC 0.5\n")

	require.NoError(t, store.Write(ref, body, Metadata{ModuleID: "helix.modules.summary", Version: "1", Record: "nisin"}))

	res, err := store.Check(ref)
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	require.NotNil(t, res.Metadata)
	assert.Equal(t, "nisin", res.Metadata.Record)
	assert.Equal(t, fixedClock(), res.Metadata.CreatedAt)
	assert.Equal(t, Checksum(body), res.Metadata.Checksum)

	content, err := os.ReadFile(store.Path(ref))
	require.NoError(t, err)
	_, parsed, err := ParseFrontMatter(content)
	require.NoError(t, err)
	assert.Equal(t, body, parsed)
}

func TestStoreDetectsEditedDocument(t *testing.T) {
	store := NewStore(t.TempDir(), WithClock(fixedClock))
	ref := Document("summary", "Summary", "summary.md")
	require.NoError(t, store.Write(ref, []byte("original"), Metadata{ModuleID: "m", Version: "1"}))

	path := store.Path(ref)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(content, []byte(" edited")...), 0o644))

	res, err := store.Check(ref)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Equal(t, StateInvalid, res.State)
}

func TestStoreJSONMetadata(t *testing.T) {
	store := NewStore(t.TempDir(), WithClock(fixedClock))
	ref := JSON("composition", "Composition", "summary", "nisin", "composition.json")
	require.NoError(t, store.Write(ref, []byte(`{"cds":7}`), Metadata{ModuleID: "m", Version: "1", Notes: map[string]string{"k": "v"}}))

	res, err := store.Check(ref)
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	assert.Equal(t, "v", res.Metadata.Notes["k"])

	require.Error(t, store.Write(ref, []byte(`[1]`), Metadata{ModuleID: "m", Version: "1"}))
	require.Error(t, store.Write(ref, []byte(`{}`), Metadata{Version: "1"}))
}

func TestStoreCheckMissingAndWrongKind(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	res, err := store.Check(Binary("img", "Image", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, StateMissing, res.State)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "a.png"), 0o755))
	res, err = store.Check(Binary("img", "Image", "a.png"))
	require.Error(t, err)
	assert.Equal(t, StateInvalid, res.State)
}

func TestStoreResetReplacesDirectory(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	dir := Directory("smcogs", "smCOG trees", "smcogs", "nisin")

	require.NoError(t, store.Write(Binary("stale", "Stale", "smcogs", "nisin", "old.png"), []byte("x"), Metadata{}))
	path, err := store.Reset(dir)
	require.NoError(t, err)

	entries, err := os.ReadDir(path)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.Reset(Binary("file", "File", "f"))
	require.Error(t, err)
}

func TestStoreResetNeverClearsRoot(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	keep := filepath.Join(root, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "smcogs", "nisin"), 0o755))

	for _, elems := range [][]string{
		{"smcogs", ".."},
		{"smcogs", "nisin", "..", ".."},
		{"."},
		{"smcogs", "..", ".."},
	} {
		_, err := store.Reset(Directory("trees", "smCOG trees", elems...))
		require.Error(t, err, elems)
	}
	assert.FileExists(t, keep)
	assert.DirExists(t, filepath.Join(root, "smcogs", "nisin"))
}

func TestArtifactRefValidate(t *testing.T) {
	assert.NoError(t, Document("a", "A", "x", "y.md").Validate())
	assert.Error(t, Document("", "A", "y.md").Validate())
	assert.Error(t, Document("a", "A", "..", "y.md").Validate())
	assert.Error(t, Directory("a", "A", "smcogs", "..").Validate())
	assert.Error(t, Directory("a", "A", ".").Validate())
	assert.Error(t, ArtifactRef{ID: "a", RelPath: "x"}.Validate())
}

func TestWriteFileAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")
	require.NoError(t, WriteFileAtomic(path, []byte("{}"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`), 0o644))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))
}
