// Package embedding 把文本转成向量, 供知识库建索引和查询检索使用.
package embedding

import (
	"context"
	"time"
)

// InputType 区分被嵌入的是查询还是待索引文档. OpenAI 忽略它, 其他服务可能据此优化.
type InputType string

const (
	InputTypeQuery    InputType = "query"
	InputTypeDocument InputType = "document"
)

// EmbeddingRequest 一次嵌入调用. Dimensions 为 0 时使用模型默认维度.
type EmbeddingRequest struct {
	Input      []string  `json:"input"`
	Model      string    `json:"model,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	InputType  InputType `json:"input_type,omitempty"`
}

// EmbeddingData Index 对应 EmbeddingRequest.Input 的下标
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type EmbeddingResponse struct {
	Provider   string          `json:"provider"`
	Model      string          `json:"model"`
	Embeddings []EmbeddingData `json:"embeddings"`
	Usage      EmbeddingUsage  `json:"usage"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}

// Provider 嵌入服务
type Provider interface {
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// EmbedQuery 嵌入单条查询
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments 批量嵌入, 返回顺序与输入一致
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	Name() string
	Dimensions() int
	MaxBatchSize() int
}
