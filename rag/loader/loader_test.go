package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ============================================================
// Registry Tests
// ============================================================

func TestNewRegistry_HasBuiltinLoaders(t *testing.T) {
	t.Parallel()

	types := NewRegistry().SupportedTypes()
	assert.Equal(t, []string{".markdown", ".md", ".txt"}, types)
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Lookup("noextension")
	assert.ErrorContains(t, err, "no extension")

	_, err = r.Lookup("file.xyz")
	assert.ErrorContains(t, err, "no loader registered")

	l, err := r.Lookup("NOTES.TXT")
	require.NoError(t, err)
	assert.IsType(t, &TextLoader{}, l)

	r.Register(".rst", NewTextLoader())
	_, err = r.Lookup("a.rst")
	assert.NoError(t, err)
}

// ============================================================
// File loader Tests
// ============================================================

func TestTextLoader_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "kb.txt", "hello world")

	docs, err := NewTextLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "kb.txt", docs[0].ID)
	assert.Equal(t, "hello world", docs[0].Content)
	assert.Equal(t, "kb.txt", docs[0].Metadata["source_file"])
	assert.Equal(t, path, docs[0].Metadata["source_path"])
}

func TestTextLoader_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTextLoader().Load(ctx, "whatever.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkdownLoader_Title(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "guide.md", "intro line\n\n## Getting Started\n\nbody\n")

	docs, err := NewMarkdownLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Getting Started", docs[0].Metadata["title"])
	assert.Equal(t, "text/markdown", docs[0].Metadata["content_type"])
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "", firstHeading("no headings\n#hashtag"))
	assert.Equal(t, "Top", firstHeading("  # Top  \n## Sub"))
	assert.Equal(t, "", firstHeading("####### seven"))
}

// ============================================================
// DirectoryLoader Tests
// ============================================================

func TestDirectoryLoader_SortedNonRecursive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "bravo")
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "c.md", "# not matched")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub"), "d.txt", "nested")

	docs, err := NewDirectoryLoader("", zap.NewNop()).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "alpha", docs[0].Content)
	assert.Equal(t, "bravo", docs[1].Content)
}

func TestDirectoryLoader_SkipsUnknownExtensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "b.csv", "x,y")

	docs, err := NewDirectoryLoader("*", nil).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.txt", docs[0].ID)
}

func TestDirectoryLoader_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewDirectoryLoader("*.txt", nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = NewDirectoryLoader("[", nil).Load(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "invalid glob")
}

func TestDirectoryLoader_EmptyDir(t *testing.T) {
	t.Parallel()

	docs, err := NewDirectoryLoader("*.txt", nil).Load(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
