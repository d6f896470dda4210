package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/kbroute/llm"
)

// =============================================================================
// 🚦 上游错误映射
// =============================================================================

// statusRule 描述一个 HTTP 状态码对应的错误码与是否可重试
type statusRule struct {
	code      llm.ErrorCode
	retryable bool
}

var statusRules = map[int]statusRule{
	http.StatusUnauthorized:       {llm.ErrUnauthorized, false},
	http.StatusForbidden:          {llm.ErrForbidden, false},
	http.StatusTooManyRequests:    {llm.ErrRateLimited, true},
	http.StatusBadRequest:         {llm.ErrInvalidRequest, false},
	http.StatusRequestTimeout:     {llm.ErrUpstreamTimeout, true},
	http.StatusGatewayTimeout:     {llm.ErrUpstreamTimeout, true},
	http.StatusBadGateway:         {llm.ErrUpstreamError, true},
	http.StatusServiceUnavailable: {llm.ErrUpstreamError, true},
	529:                           {llm.ErrModelOverloaded, true},
}

// MapHTTPError 把上游的非 2xx 响应转为 llm.Error, 并标记能否重试.
// 429/400 里带额度字样的消息归为 ErrQuotaExceeded, 重试不会成功.
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	rule, ok := statusRules[status]
	if !ok {
		rule = statusRule{code: llm.ErrUpstreamError, retryable: status >= 500}
	}
	if (status == http.StatusTooManyRequests || status == http.StatusBadRequest) && mentionsQuota(msg) {
		rule = statusRule{code: llm.ErrQuotaExceeded}
	}
	return &llm.Error{
		Code:       rule.code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  rule.retryable,
		Provider:   provider,
	}
}

func mentionsQuota(msg string) bool {
	lower := strings.ToLower(msg)
	for _, word := range []string{"quota", "credit", "billing"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// TransportError 表示请求没有拿到响应 (DNS, 连接重置等), 总是可重试
func TransportError(err error, provider string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
	}
}

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// ReadErrorMessage 从错误响应体里取出可读消息.
// 依次识别 {"error":{...}}、{"detail":...}、{"message":...}, 都不是时返回原文.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}

	var parsed struct {
		Error   *APIError `json:"error"`
		Detail  string    `json:"detail"`
		Message string    `json:"message"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		switch {
		case parsed.Error != nil && parsed.Error.Message != "":
			if parsed.Error.Type == "" {
				return parsed.Error.Message
			}
			return fmt.Sprintf("%s (type: %s)", parsed.Error.Message, parsed.Error.Type)
		case parsed.Detail != "":
			return parsed.Detail
		case parsed.Message != "":
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// =============================================================================
// 📦 Chat Completions 线上格式
// =============================================================================

// APIError 是 OpenAI 风格错误体里的 error 对象
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
	Param   string `json:"param"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatCompletionRequest 是 POST /chat/completions 的请求体
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	User        string        `json:"user,omitempty"`
}

type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      ChatMessage `json:"message"`
}

type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse 是非流式补全的响应体
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Created int64                  `json:"created,omitempty"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ChatCompletionUsage   `json:"usage,omitempty"`
}

// ToWireMessages 把 llm.Message 转为线上格式
func ToWireMessages(msgs []llm.Message) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ChatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name}
	}
	return out
}

// FromWireResponse 把补全响应转为 llm.ChatResponse. 所有 choice 都视为 assistant 消息.
func FromWireResponse(wire ChatCompletionResponse, provider string) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		ID:       wire.ID,
		Provider: provider,
		Model:    wire.Model,
		Choices:  make([]llm.ChatChoice, len(wire.Choices)),
	}
	for i, c := range wire.Choices {
		resp.Choices[i] = llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: c.Message.Content, Name: c.Message.Name},
		}
	}
	if u := wire.Usage; u != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return resp
}

// ChooseModel 优先用请求里的模型, 其次是配置默认值, 最后是 fallback
func ChooseModel(req *llm.ChatRequest, configured, fallback string) string {
	switch {
	case req != nil && req.Model != "":
		return req.Model
	case configured != "":
		return configured
	default:
		return fallback
	}
}

// SetJSONAuth 设置 Bearer 认证与 JSON content type
func SetJSONAuth(r *http.Request, apiKey string) {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("Content-Type", "application/json")
}
