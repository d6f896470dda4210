package api

import (
	"encoding/json"

	"github.com/BaSui01/kbroute/pipeline"
)

// =============================================================================
// 查询类型
// =============================================================================

// QueryRequest POST /query 与 /query/stream 首条消息的请求体。
// @Description 批量查询请求
type QueryRequest struct {
	// 查询列表，必须是非空字符串数组。保留原始 JSON 以便区分非数组与非字符串元素。
	Queries json.RawMessage `json:"queries" swaggertype:"array,string"`
	// 是否返回截断后的展示答案，默认 true
	Truncate *bool `json:"truncate,omitempty" example:"true"`
}

// QueryResponse POST /query 成功时 data 字段的内容。
// @Description 批量查询结果
type QueryResponse struct {
	// 每个成功查询一个文本块，顺序与输入一致
	Answers []string `json:"answers"`
	// 以查询为键的完整记录，键顺序与输入一致
	Traces *pipeline.Traces `json:"traces"`
}

// =============================================================================
// 流式类型
// =============================================================================

// 流消息类型
const (
	StreamRecord    = "record"
	StreamDone      = "done"
	StreamTypeError = "error"
)

// StreamMessage /query/stream 推送的消息。
// @Description websocket 推送消息
type StreamMessage struct {
	Type string `json:"type" example:"record"`
	// record: 输入中的位置 (从 1 开始)、文本块与完整记录
	Index  int                    `json:"index,omitempty"`
	Block  string                 `json:"block,omitempty"`
	Record *pipeline.AnswerRecord `json:"record,omitempty"`
	// done: 批次 ID 与成功的查询数
	RunID string `json:"run_id,omitempty"`
	Count int    `json:"count,omitempty"`
	// error: 请求无效
	Error *StreamError `json:"error,omitempty"`
}

// StreamError 流式错误
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
