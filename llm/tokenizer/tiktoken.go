package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 使用 tiktoken-go 对 OpenAI 模型进行精确计数.
// 编码表在第一次调用时懒加载.
type TiktokenTokenizer struct {
	model    string
	encoding string

	enc     *tiktoken.Tiktoken
	once    sync.Once
	initErr error
}

// 模型 -> 编码映射.
var modelEncodings = map[string]string{
	"gpt-4o":                 "o200k_base",
	"gpt-4o-mini":            "o200k_base",
	"gpt-4.1":                "o200k_base",
	"gpt-4.1-mini":           "o200k_base",
	"gpt-4":                  "cl100k_base",
	"gpt-4-turbo":            "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-ada-002": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// EncodingForModel 返回模型对应的编码名, 先精确匹配, 再按最长前缀匹配.
func EncodingForModel(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	best, bestLen := "", 0
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = enc, len(prefix)
		}
	}
	if best != "" {
		return best
	}
	return defaultEncoding
}

func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	return &TiktokenTokenizer{
		model:    model,
		encoding: EncodingForModel(model),
	}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("load tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Encoding 返回编码名称.
func (t *TiktokenTokenizer) Encoding() string { return t.encoding }

func (t *TiktokenTokenizer) Name() string { return "tiktoken[" + t.encoding + "]" }
