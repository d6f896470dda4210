package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/llm/tokenizer"
)

// DefaultSeparators 分隔符优先级：段落 > 换行 > 单词 > 字符
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// ChunkingConfig 分块配置. 大小与重叠均按字符（rune）计.
type ChunkingConfig struct {
	ChunkSize    int      `json:"chunk_size"`
	ChunkOverlap int      `json:"chunk_overlap"`
	Separators   []string `json:"separators,omitempty"`
}

// DefaultChunkingConfig 默认分块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1000,
		ChunkOverlap: 100,
		Separators:   DefaultSeparators,
	}
}

// Validate 检查配置
func (c ChunkingConfig) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
	}
	return nil
}

// DocumentChunker 文档分块器
type DocumentChunker struct {
	config    ChunkingConfig
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger

	tokenizerFailed bool
}

// NewDocumentChunker 创建文档分块器. tok 为 nil 时按 rune 计 token.
func NewDocumentChunker(config ChunkingConfig, tok tokenizer.Tokenizer, logger *zap.Logger) (*DocumentChunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}
	if tok == nil {
		tok = tokenizer.RuneTokenizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentChunker{
		config:    config,
		tokenizer: tok,
		logger:    logger,
	}, nil
}

// ChunkDocument 将文档切分为块. 块继承文档元数据, 并追加
// chunk_index 与 token_count. 空白文档不产生块.
func (c *DocumentChunker) ChunkDocument(doc Document) []Document {
	texts := c.SplitText(doc.Content)
	chunks := make([]Document, 0, len(texts))
	for i, text := range texts {
		meta := make(map[string]any, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["chunk_index"] = i
		meta["token_count"] = c.countTokens(text)
		chunks = append(chunks, Document{
			ID:       fmt.Sprintf("%s#%d", doc.ID, i),
			Content:  text,
			Metadata: meta,
		})
	}
	return chunks
}

// SplitText 递归切分文本. 每块去除首尾空白, 长度不超过 ChunkSize,
// 除非某个片段在所有分隔符下都无法再分.
func (c *DocumentChunker) SplitText(text string) []string {
	return c.split(text, c.config.Separators)
}

func (c *DocumentChunker) split(text string, separators []string) []string {
	// 选择文本中出现的第一个分隔符
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitNonEmpty(text, sep) {
		if runeLen(piece) < c.config.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			if piece = strings.TrimSpace(piece); piece != "" {
				final = append(final, piece)
			}
		} else {
			final = append(final, c.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good, sep)...)
	}
	return final
}

// merge 把小片段合并成不超过 ChunkSize 的块, 相邻块保留最多 ChunkOverlap 的重叠.
func (c *DocumentChunker) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	size, overlap := c.config.ChunkSize, c.config.ChunkOverlap

	var docs, current []string
	total := 0
	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(n) > size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				docs = append(docs, doc)
			}
			// 丢弃头部片段, 直到剩余部分满足重叠上限且能容纳新片段
			for total > overlap || (joinedLen(n) > size && total > 0) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func (c *DocumentChunker) countTokens(text string) int {
	if !c.tokenizerFailed {
		n, err := c.tokenizer.CountTokens(text)
		if err == nil {
			return n
		}
		c.tokenizerFailed = true
		c.logger.Warn("tokenizer failed, counting runes instead",
			zap.String("tokenizer", c.tokenizer.Name()),
			zap.Error(err))
	}
	return runeLen(text)
}

func splitNonEmpty(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = make([]string, 0, runeLen(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, sep)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
