package rag

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newChunker(t *testing.T, size, overlap int) *DocumentChunker {
	t.Helper()
	c, err := NewDocumentChunker(ChunkingConfig{ChunkSize: size, ChunkOverlap: overlap}, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestDefaultChunkingConfig(t *testing.T) {
	cfg := DefaultChunkingConfig()
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, []string{"\n\n", "\n", " ", ""}, cfg.Separators)
	assert.NoError(t, cfg.Validate())
}

func TestChunkingConfig_Validate(t *testing.T) {
	assert.Error(t, ChunkingConfig{ChunkSize: 0}.Validate())
	assert.Error(t, ChunkingConfig{ChunkSize: 10, ChunkOverlap: 10}.Validate())
	assert.Error(t, ChunkingConfig{ChunkSize: 10, ChunkOverlap: -1}.Validate())
	assert.NoError(t, ChunkingConfig{ChunkSize: 10, ChunkOverlap: 9}.Validate())
}

func TestDocumentChunker_SmallDocumentSingleChunk(t *testing.T) {
	c := newChunker(t, 1000, 100)
	chunks := c.ChunkDocument(Document{
		ID:       "a.txt",
		Content:  "  Go is a statically typed language.\n",
		Metadata: map[string]any{"source_file": "a.txt"},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, "a.txt#0", chunks[0].ID)
	assert.Equal(t, "Go is a statically typed language.", chunks[0].Content)
	assert.Equal(t, "a.txt", chunks[0].Metadata["source_file"])
	assert.Equal(t, 0, chunks[0].Metadata["chunk_index"])
	assert.Equal(t, utf8.RuneCountInString(chunks[0].Content), chunks[0].Metadata["token_count"])
}

func TestDocumentChunker_EmptyDocument(t *testing.T) {
	c := newChunker(t, 100, 10)
	assert.Empty(t, c.ChunkDocument(Document{ID: "e", Content: " \n\n \n"}))
}

func TestDocumentChunker_SplitsOnParagraphsFirst(t *testing.T) {
	c := newChunker(t, 30, 0)
	text := "first paragraph here\n\nsecond paragraph here\n\nthird one"
	got := c.SplitText(text)
	assert.Equal(t, []string{"first paragraph here", "second paragraph here", "third one"}, got)
}

func TestDocumentChunker_MergesSmallPieces(t *testing.T) {
	c := newChunker(t, 12, 0)
	got := c.SplitText("a b c d e f g h i j k l m n")
	for _, chunk := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 12)
	}
	assert.Equal(t, "a b c d e f", got[0])
}

func TestDocumentChunker_Overlap(t *testing.T) {
	c := newChunker(t, 10, 4)
	got := c.SplitText("one two three four five six")
	assert.Equal(t, []string{"one two", "two three", "four five", "five six"}, got)
}

func TestDocumentChunker_FallsBackToCharacters(t *testing.T) {
	c := newChunker(t, 5, 0)
	got := c.SplitText("abcdefghijkl")
	assert.Equal(t, []string{"abcde", "fghij", "kl"}, got)
}

func TestDocumentChunker_UnsplittablePiecesAreTrimmed(t *testing.T) {
	c := newChunker(t, 1, 0)
	assert.Equal(t, []string{"a", "b"}, c.SplitText("a\tb"))

	c, err := NewDocumentChunker(ChunkingConfig{ChunkSize: 3, Separators: []string{"|"}}, nil, zap.NewNop())
	require.NoError(t, err)
	for _, chunk := range c.SplitText("ab|    |  cdef  |gh") {
		assert.Equal(t, strings.TrimSpace(chunk), chunk)
		assert.NotEmpty(t, chunk)
	}
}

func TestDocumentChunker_MultiByteRunes(t *testing.T) {
	c := newChunker(t, 4, 0)
	got := c.SplitText("知识库检索与网络搜索")
	for _, chunk := range got {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 4)
	}
	assert.Equal(t, "知识库检索与网络搜索", strings.Join(got, ""))
}

type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("no encoding") }
func (failingTokenizer) Name() string                    { return "failing" }

func TestDocumentChunker_TokenizerFailureFallsBack(t *testing.T) {
	c, err := NewDocumentChunker(ChunkingConfig{ChunkSize: 100}, failingTokenizer{}, nil)
	require.NoError(t, err)
	chunks := c.ChunkDocument(Document{ID: "x", Content: "hello"})
	require.Len(t, chunks, 1)
	assert.Equal(t, 5, chunks[0].Metadata["token_count"])
}

func TestDocumentChunker_ChunksNeverExceedSize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 60).Draw(t, "size")
		overlap := rapid.IntRange(0, size-1).Draw(t, "overlap")
		text := rapid.StringMatching(`[a-z \n]{0,400}`).Draw(t, "text")

		c, err := NewDocumentChunker(ChunkingConfig{ChunkSize: size, ChunkOverlap: overlap}, nil, nil)
		if err != nil {
			t.Fatalf("new chunker: %v", err)
		}
		for _, chunk := range c.SplitText(text) {
			if n := utf8.RuneCountInString(chunk); n > size {
				t.Fatalf("chunk %q has %d runes, limit %d", chunk, n, size)
			}
			if chunk != strings.TrimSpace(chunk) || chunk == "" {
				t.Fatalf("chunk %q is not trimmed", chunk)
			}
		}
	})
}
