package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "LLM_INVALID_REQUEST"     // 参数/格式错误
	ErrUnauthorized       ErrorCode = "LLM_UNAUTHORIZED"        // 未授权或密钥失效
	ErrForbidden          ErrorCode = "LLM_FORBIDDEN"           // 权限或内容策略拒绝
	ErrRateLimited        ErrorCode = "LLM_RATE_LIMITED"        // 上游或本地限流
	ErrQuotaExceeded      ErrorCode = "LLM_QUOTA_EXCEEDED"      // 额度/配额用尽
	ErrModelOverloaded    ErrorCode = "LLM_MODEL_OVERLOADED"    // 模型过载
	ErrUpstreamTimeout    ErrorCode = "LLM_UPSTREAM_TIMEOUT"    // 上游超时
	ErrUpstreamError      ErrorCode = "LLM_UPSTREAM_ERROR"      // 上游 5xx/网络错误
	ErrEmptyCompletion    ErrorCode = "LLM_EMPTY_COMPLETION"    // 响应中没有 choice
	ErrMissingCredentials ErrorCode = "LLM_MISSING_CREDENTIALS" // 构造时缺少 API Key
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

type ChatRequest struct {
	TraceID     string            `json:"trace_id"`
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UserPrompt builds a single-turn request carrying one user message.
func UserPrompt(model, prompt string, maxTokens int) *ChatRequest {
	return &ChatRequest{
		Model:     model,
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
	}
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Text returns the trimmed content of the first choice.
func (r *ChatResponse) Text() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", &Error{Code: ErrEmptyCompletion, Message: "completion returned no choices", Provider: providerOf(r)}
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}

func providerOf(r *ChatResponse) string {
	if r == nil {
		return ""
	}
	return r.Provider
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 定义了统一的 LLM 适配接口。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
