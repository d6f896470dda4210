package rag

import "context"

// Document 文档或文档块
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
}

// DocumentLoader 从来源加载文档. source 通常是目录或文件路径.
type DocumentLoader interface {
	Load(ctx context.Context, source string) ([]Document, error)
}

// withoutEmbeddings 返回去掉向量的副本, 缓存与序列化时使用.
func withoutEmbeddings(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		d.Embedding = nil
		out[i] = d
	}
	return out
}
