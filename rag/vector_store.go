package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// VectorStore 向量存储接口
type VectorStore interface {
	// AddDocuments 添加带向量的文档
	AddDocuments(ctx context.Context, docs []Document) error

	// Search 返回与查询向量最相似的 topK 个文档, 按分数降序
	Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error)

	Count(ctx context.Context) (int, error)
}

// VectorSearchResult 一条命中. Distance = 1 - Score.
type VectorSearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Distance float64  `json:"distance"`
}

// ====== 内存向量存储 ======

// indexed 文档及其向量范数, 范数在写入时算好
type indexed struct {
	doc  Document
	norm float64
}

// InMemoryVectorStore 暴力检索的内存存储, 知识库规模是几十到几千个 chunk
type InMemoryVectorStore struct {
	mu      sync.RWMutex
	entries []indexed
	dims    int
	logger  *zap.Logger
}

func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{logger: logger}
}

// AddDocuments 添加文档. 第一篇文档决定维度, 之后不一致的整批拒绝.
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dims
	batch := make([]indexed, 0, len(docs))
	for _, doc := range docs {
		switch {
		case len(doc.Embedding) == 0:
			return fmt.Errorf("document %s has no embedding", doc.ID)
		case dims == 0:
			dims = len(doc.Embedding)
		case len(doc.Embedding) != dims:
			return fmt.Errorf("document %s has %d dimensions, store expects %d", doc.ID, len(doc.Embedding), dims)
		}
		batch = append(batch, indexed{doc: doc, norm: norm(doc.Embedding)})
	}
	s.dims = dims
	s.entries = append(s.entries, batch...)

	s.logger.Debug("documents added to vector store",
		zap.Int("count", len(docs)),
		zap.Int("total", len(s.entries)))
	return nil
}

// Search 计算与每个文档的余弦相似度. 同分按写入顺序.
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, fmt.Errorf("vector store is empty")
	}
	if len(queryEmbedding) != s.dims {
		return nil, fmt.Errorf("query has %d dimensions, store expects %d", len(queryEmbedding), s.dims)
	}

	qNorm := norm(queryEmbedding)
	results := make([]VectorSearchResult, len(s.entries))
	for i, e := range s.entries {
		score := cosine(queryEmbedding, e.doc.Embedding, qNorm, e.norm)
		results[i] = VectorSearchResult{Document: e.doc, Score: score, Distance: 1 - score}
	}
	slices.SortStableFunc(results, func(a, b VectorSearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return results[:min(max(topK, 1), len(results))], nil
}

func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 { return math.Sqrt(dot(v, v)) }

// cosine 用预先算好的范数求余弦相似度, 零向量得 0
func cosine(a, b []float64, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}
