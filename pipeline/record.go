package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/kbroute/types"
)

// DefaultDisplayLimit 展示副本的默认截断长度 (rune)
const DefaultDisplayLimit = 500

// ReasoningTrace 决策轨迹
type ReasoningTrace struct {
	PromptVersion string `json:"prompt_version"`
	Used          string `json:"used"`
	DecisionText  string `json:"decision_text"`
}

// AnswerRecord 单个查询的完整记录. Answer 从不截断.
// ToolLatency 只在走 Web 路由时存在, 否则序列化为 null.
type AnswerRecord struct {
	Query          string         `json:"query"`
	Answer         string         `json:"answer"`
	ReasoningTrace ReasoningTrace `json:"reasoning_trace"`
	Latency        float64        `json:"latency"`
	ToolLatency    *float64       `json:"tool_latency"`
}

// SourceUsed 返回 KB 或 Web
func (r AnswerRecord) SourceUsed() string { return r.ReasoningTrace.Used }

// Truncate 返回展示副本: 超过 limit 个字符时截断并追加 "...".
func Truncate(s string, limit int) string {
	return types.TruncateRunes(s, limit)
}

// FormatBlock 生成单个查询的可读文本块
func FormatBlock(n int, query, displayAnswer, source string, latencySeconds float64) string {
	return fmt.Sprintf("--- Query %d: %s ---\nAnswer: %s\n(used: %s, latency: %.2fs)\n",
		n, query, displayAnswer, source, latencySeconds)
}

// Traces 按查询索引的记录集合, 保持首次插入顺序.
// 重复的查询覆盖旧记录但保留原位置.
type Traces struct {
	order   []string
	records map[string]AnswerRecord
}

// NewTraces 创建空集合
func NewTraces() *Traces {
	return &Traces{records: make(map[string]AnswerRecord)}
}

// Put 写入记录
func (t *Traces) Put(r AnswerRecord) {
	if _, ok := t.records[r.Query]; !ok {
		t.order = append(t.order, r.Query)
	}
	t.records[r.Query] = r
}

// Get 按查询读取记录
func (t *Traces) Get(query string) (AnswerRecord, bool) {
	r, ok := t.records[query]
	return r, ok
}

// Len 返回记录数
func (t *Traces) Len() int { return len(t.order) }

// Queries 按插入顺序返回查询
func (t *Traces) Queries() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Records 按插入顺序返回记录
func (t *Traces) Records() []AnswerRecord {
	out := make([]AnswerRecord, 0, len(t.order))
	for _, q := range t.order {
		out = append(out, t.records[q])
	}
	return out
}

// MarshalJSON 编码为按插入顺序排列的对象 {query: record}
func (t *Traces) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, q := range t.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(q)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(t.records[q])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 解码对象形式的记录集合, 保持键在文档中的顺序
func (t *Traces) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("traces: expected object, got %v", tok)
	}
	*t = *NewTraces()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var r AnswerRecord
		if err := dec.Decode(&r); err != nil {
			return err
		}
		if key, ok := keyTok.(string); ok && r.Query == "" {
			r.Query = key
		}
		t.Put(r)
	}
	_, err = dec.Token()
	return err
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
