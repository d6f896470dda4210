package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/internal/cache"
	"github.com/BaSui01/kbroute/testutil"
	"github.com/BaSui01/kbroute/testutil/mocks"
	"github.com/BaSui01/kbroute/types"
)

// txtLoader 读取目录下所有 .txt 文件（按名称排序）.
type txtLoader struct{}

func (txtLoader) Load(ctx context.Context, dir string) ([]Document, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	var docs []Document
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: filepath.Base(m), Content: string(data)})
	}
	return docs, nil
}

var kbFiles = map[string]string{
	"go.txt":     "Go channels let goroutines communicate safely.",
	"python.txt": "Python decorators wrap functions to extend behaviour.",
	"rust.txt":   "Rust ownership rules guarantee memory safety without a garbage collector.",
}

func newTestRetriever(t *testing.T, emb *mocks.HashEmbedder, store cache.Store) *KnowledgeRetriever {
	t.Helper()
	r, err := NewKnowledgeRetriever(context.Background(), RetrieverConfig{
		DocsPath: testutil.WriteKB(t, kbFiles),
		Loader:   txtLoader{},
		Chunking: ChunkingConfig{ChunkSize: 200, ChunkOverlap: 20},
	}, emb, store, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestNewKnowledgeRetriever_BuildsIndex(t *testing.T) {
	emb := mocks.NewHashEmbedder(0)
	r := newTestRetriever(t, emb, nil)

	stats := r.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Greater(t, stats.Tokens, 0)
	assert.Equal(t, 1, emb.DocumentCalls())
}

func TestNewKnowledgeRetriever_ConfigErrors(t *testing.T) {
	ctx := context.Background()
	emb := mocks.NewHashEmbedder(0)

	_, err := NewKnowledgeRetriever(ctx, RetrieverConfig{DocsPath: filepath.Join(t.TempDir(), "nope"), Loader: txtLoader{}}, emb, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))

	_, err = NewKnowledgeRetriever(ctx, RetrieverConfig{DocsPath: t.TempDir(), Loader: txtLoader{}}, emb, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))
	assert.ErrorContains(t, err, "no loadable documents")

	blank := testutil.WriteKB(t, map[string]string{"empty.txt": "   \n"})
	_, err = NewKnowledgeRetriever(ctx, RetrieverConfig{DocsPath: blank, Loader: txtLoader{}}, emb, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))

	_, err = NewKnowledgeRetriever(ctx, RetrieverConfig{DocsPath: blank}, emb, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))

	file := filepath.Join(blank, "empty.txt")
	_, err = NewKnowledgeRetriever(ctx, RetrieverConfig{DocsPath: file, Loader: txtLoader{}}, emb, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))
}

func TestNewKnowledgeRetriever_EmbeddingFailureIsFatal(t *testing.T) {
	emb := mocks.NewHashEmbedder(0).WithDocumentError(errors.New("quota"))
	_, err := NewKnowledgeRetriever(context.Background(), RetrieverConfig{
		DocsPath: testutil.WriteKB(t, kbFiles),
		Loader:   txtLoader{},
	}, emb, nil, nil)
	assert.ErrorContains(t, err, "build kb index")
}

func TestGetRelevantDocs_RanksAndSummarizes(t *testing.T) {
	r := newTestRetriever(t, mocks.NewHashEmbedder(0), nil)

	kb := r.GetRelevantDocs(context.Background(), "how do goroutines use channels", 1)
	require.Len(t, kb.Documents, 1)
	assert.Equal(t, "go.txt#0", kb.Documents[0].ID)
	assert.Equal(t, kbFiles["go.txt"], kb.Summary)
	assert.Nil(t, kb.Documents[0].Embedding)
	assert.False(t, kb.Degraded)
}

func TestGetRelevantDocs_DefaultTopKAndSummaryJoin(t *testing.T) {
	r := newTestRetriever(t, mocks.NewHashEmbedder(0), nil)

	kb := r.GetRelevantDocs(context.Background(), "memory safety", 0)
	require.Len(t, kb.Documents, DefaultTopK)
	parts := make([]string, len(kb.Documents))
	for i, d := range kb.Documents {
		parts[i] = d.Content
	}
	assert.Equal(t, parts[0]+" "+parts[1]+" "+parts[2], kb.Summary)

	kb = r.GetRelevantDocs(context.Background(), "memory safety", -5)
	assert.Len(t, kb.Documents, 1)
}

func TestGetRelevantDocs_CacheIdempotence(t *testing.T) {
	emb := mocks.NewHashEmbedder(0)
	r := newTestRetriever(t, emb, cache.NewMapStore())
	ctx := context.Background()

	first := r.GetRelevantDocs(ctx, "python decorators", 3)
	second := r.GetRelevantDocs(ctx, "python decorators", 3)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, emb.QueryCalls())

	// 不同 top_k 是不同的缓存键
	r.GetRelevantDocs(ctx, "python decorators", 2)
	assert.Equal(t, 2, emb.QueryCalls())
}

func TestGetRelevantDocs_DegradesToEmptyAndCaches(t *testing.T) {
	emb := mocks.NewHashEmbedder(0)
	r := newTestRetriever(t, emb, nil)
	emb.WithQueryError(errors.New("embedding service down"))

	var lookups int
	r.memo.OnLookup = func(string, bool) { lookups++ }

	kb := r.GetRelevantDocs(context.Background(), "anything", 3)
	assert.Equal(t, "", kb.Summary)
	assert.Empty(t, kb.Documents)
	assert.NotNil(t, kb.Documents)
	assert.True(t, kb.Degraded)
	assert.True(t, kb.Empty())

	kb2 := r.GetRelevantDocs(context.Background(), "anything", 3)
	assert.Equal(t, kb, kb2)
	assert.Equal(t, 1, emb.QueryCalls())
	assert.Equal(t, 2, lookups)
}

func TestGetRelevantDocs_CancelledContextNotCached(t *testing.T) {
	emb := mocks.NewHashEmbedder(0)
	r := newTestRetriever(t, emb, nil)

	kb := r.GetRelevantDocs(testutil.CancelledContext(), "go", 3)
	assert.True(t, kb.Degraded)

	kb = r.GetRelevantDocs(context.Background(), "go", 3)
	assert.False(t, kb.Degraded)
	assert.NotEmpty(t, kb.Summary)
}
