package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/internal/cache"
	"github.com/BaSui01/kbroute/llm/embedding"
	"github.com/BaSui01/kbroute/llm/tokenizer"
	"github.com/BaSui01/kbroute/types"
)

// DefaultTopK 检索默认返回的块数
const DefaultTopK = 3

// KBContext 一次检索的结果. Summary 为命中块按排名顺序以单个空格拼接.
type KBContext struct {
	Summary   string     `json:"summary"`
	Documents []Document `json:"documents"`
	// Degraded 表示检索失败后降级为空结果
	Degraded bool `json:"degraded,omitempty"`
}

// Empty 报告是否没有可用的知识库内容
func (k KBContext) Empty() bool {
	return strings.TrimSpace(k.Summary) == ""
}

func emptyKBContext(degraded bool) KBContext {
	return KBContext{Summary: "", Documents: []Document{}, Degraded: degraded}
}

// RetrieverConfig 知识检索器配置
type RetrieverConfig struct {
	// 文档目录
	DocsPath string
	// 文档加载器, 必填
	Loader DocumentLoader
	// 分块配置
	Chunking ChunkingConfig
	// 块 token 统计, 为空时按 rune 计
	Tokenizer tokenizer.Tokenizer
	// 默认 top_k
	TopK int
	// 建索引时的批大小与并发批数
	EmbedBatchSize   int
	EmbedConcurrency int
	// 每次缓存查询后回调, 可为空
	OnCacheLookup func(cache string, hit bool)
}

// IndexStats 索引统计
type IndexStats struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Tokens    int           `json:"tokens"`
	BuildTime time.Duration `json:"build_time"`
}

// KnowledgeRetriever 知识检索器
type KnowledgeRetriever struct {
	embedder embedding.Provider
	store    VectorStore
	memo     *cache.Memo[KBContext]
	topK     int
	stats    IndexStats
	logger   *zap.Logger
}

// NewKnowledgeRetriever 加载文档目录并建立向量索引.
//
// 目录不存在或没有可加载文档时返回 CONFIG_ERROR; 向量化失败同样中止构造.
func NewKnowledgeRetriever(ctx context.Context, cfg RetrieverConfig, embedder embedding.Provider, store cache.Store, logger *zap.Logger) (*KnowledgeRetriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "knowledge_retriever"))

	if cfg.Loader == nil {
		return nil, types.NewConfigError("knowledge retriever requires a document loader")
	}
	if embedder == nil {
		return nil, types.NewConfigError("knowledge retriever requires an embedding provider")
	}
	if store == nil {
		store = cache.NewMapStore()
	}
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking = DefaultChunkingConfig()
	}

	info, err := os.Stat(cfg.DocsPath)
	if err != nil {
		return nil, types.NewConfigError("docs path %q does not exist", cfg.DocsPath).WithCause(err)
	}
	if !info.IsDir() {
		return nil, types.NewConfigError("docs path %q is not a directory", cfg.DocsPath)
	}

	start := time.Now()
	docs, err := cfg.Loader.Load(ctx, cfg.DocsPath)
	if err != nil {
		return nil, types.NewConfigError("load documents from %q", cfg.DocsPath).WithCause(err)
	}

	chunker, err := NewDocumentChunker(cfg.Chunking, cfg.Tokenizer, logger)
	if err != nil {
		return nil, types.NewConfigError("invalid chunking config").WithCause(err)
	}

	var chunks []Document
	tokens := 0
	for _, doc := range docs {
		for _, c := range chunker.ChunkDocument(doc) {
			if n, ok := c.Metadata["token_count"].(int); ok {
				tokens += n
			}
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return nil, types.NewConfigError("no loadable documents found in %q", cfg.DocsPath)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedding.EmbedInBatches(ctx, embedder, texts, cfg.EmbedBatchSize, cfg.EmbedConcurrency)
	if err != nil {
		return nil, fmt.Errorf("build kb index: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	vs := NewInMemoryVectorStore(logger)
	if err := vs.AddDocuments(ctx, chunks); err != nil {
		return nil, fmt.Errorf("build kb index: %w", err)
	}

	r := &KnowledgeRetriever{
		embedder: embedder,
		store:    vs,
		memo:     cache.NewMemo[KBContext](store, "retrieval", logger),
		topK:     cfg.TopK,
		stats: IndexStats{
			Documents: len(docs),
			Chunks:    len(chunks),
			Tokens:    tokens,
			BuildTime: time.Since(start),
		},
		logger: logger,
	}
	r.memo.OnLookup = cfg.OnCacheLookup

	logger.Info("kb index built",
		zap.String("docs_path", cfg.DocsPath),
		zap.Int("documents", r.stats.Documents),
		zap.Int("chunks", r.stats.Chunks),
		zap.Int("tokens", r.stats.Tokens),
		zap.Duration("build_time", r.stats.BuildTime))

	return r, nil
}

// Stats 返回索引统计
func (r *KnowledgeRetriever) Stats() IndexStats { return r.stats }

// normalizeTopK 0 表示默认值, 负数钳制为 1
func (r *KnowledgeRetriever) normalizeTopK(topK int) int {
	switch {
	case topK == 0:
		return r.topK
	case topK < 0:
		return 1
	default:
		return topK
	}
}

// GetRelevantDocs 返回与查询最相关的块. 结果按 (query, topK) 精确缓存.
// 检索失败返回 Degraded 的空结果, 该结果同样被缓存; 只有 context 取消时不缓存.
func (r *KnowledgeRetriever) GetRelevantDocs(ctx context.Context, query string, topK int) KBContext {
	topK = r.normalizeTopK(topK)
	key := cache.HashKey("kb:", query, strconv.Itoa(topK))

	kb, _, err := r.memo.Do(ctx, key, func(ctx context.Context) (KBContext, bool, error) {
		return r.search(ctx, query, topK)
	})
	if err != nil {
		// 只有 context 错误会走到这里
		return emptyKBContext(true)
	}
	return kb
}

func (r *KnowledgeRetriever) search(ctx context.Context, query string, topK int) (KBContext, bool, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err == nil {
		var results []VectorSearchResult
		results, err = r.store.Search(ctx, vec, topK)
		if err == nil {
			docs := make([]Document, len(results))
			parts := make([]string, len(results))
			for i, res := range results {
				docs[i] = res.Document
				parts[i] = res.Document.Content
			}
			return KBContext{
				Summary:   strings.Join(parts, " "),
				Documents: withoutEmbeddings(docs),
			}, true, nil
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return emptyKBContext(true), false, ctxErr
	}
	r.logger.Warn("kb retrieval failed, degrading to empty context",
		zap.String("query", query),
		zap.Error(err))
	return emptyKBContext(true), true, nil
}
