package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/BaSui01/kbroute/llm/embedding"
)

// HashEmbedder 确定性的词袋向量化: 每个小写单词哈希到一个维度.
// 共享词越多的文本余弦相似度越高, 足以驱动检索测试.
type HashEmbedder struct {
	mu sync.Mutex

	dims     int
	queryErr error
	docErr   error

	queryCalls int
	docCalls   int
}

// NewHashEmbedder 创建向量化器, dims <= 0 时使用 256.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// WithQueryError 让 EmbedQuery 返回 err
func (e *HashEmbedder) WithQueryError(err error) *HashEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queryErr = err
	return e
}

// WithDocumentError 让 EmbedDocuments 返回 err
func (e *HashEmbedder) WithDocumentError(err error) *HashEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docErr = err
	return e
}

// QueryCalls 返回 EmbedQuery 调用次数
func (e *HashEmbedder) QueryCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queryCalls
}

// DocumentCalls 返回 EmbedDocuments 调用次数
func (e *HashEmbedder) DocumentCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docCalls
}

// Vector 返回文本的确定性向量
func (e *HashEmbedder) Vector(text string) []float64 {
	vec := make([]float64, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32())%e.dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (e *HashEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	vecs, err := e.EmbedDocuments(ctx, req.Input)
	if err != nil {
		return nil, err
	}
	resp := &embedding.EmbeddingResponse{Provider: e.Name(), Model: "hash"}
	for i, v := range vecs {
		resp.Embeddings = append(resp.Embeddings, embedding.EmbeddingData{Index: i, Embedding: v})
	}
	return resp, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.queryCalls++
	err := e.queryErr
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.Vector(query), nil
}

func (e *HashEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.docCalls++
	err := e.docErr
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(documents))
	for i, d := range documents {
		out[i] = e.Vector(d)
	}
	return out, nil
}

func (e *HashEmbedder) Name() string      { return "hash" }
func (e *HashEmbedder) Dimensions() int   { return e.dims }
func (e *HashEmbedder) MaxBatchSize() int { return 16 }

var _ embedding.Provider = (*HashEmbedder)(nil)
