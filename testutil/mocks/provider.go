// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按提示词规则应答与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/kbroute/llm"
)

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应配置
	response string
	rules    []rule
	err      error

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int
}

type rule struct {
	contains string
	response string
	err      error
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Prompt   string
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置默认响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithRule 提示词包含 contains 时返回 response. 规则按添加顺序匹配.
func (m *MockProvider) WithRule(contains, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{contains: contains, response: response})
	return m
}

// WithErrorRule 提示词包含 contains 时返回 err.
func (m *MockProvider) WithErrorRule(contains string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{contains: contains, err: err})
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- 调用记录 ---

// Calls 返回调用记录副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// CountCallsContaining 返回提示词包含 s 的调用次数
func (m *MockProvider) CountCallsContaining(s string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.Contains(c.Prompt, s) {
			n++
		}
	}
	return n
}

// --- Provider 接口实现 ---

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	prompt := promptOf(req)
	record := func(resp *llm.ChatResponse, err error) (*llm.ChatResponse, error) {
		m.calls = append(m.calls, MockProviderCall{Request: req, Prompt: prompt, Response: resp, Error: err})
		return resp, err
	}

	if m.failAfter > 0 && m.callCount > m.failAfter {
		return record(nil, errors.New("mock provider: configured to fail after N calls"))
	}
	if m.err != nil {
		return record(nil, m.err)
	}
	if m.completionFunc != nil {
		return record(m.completionFunc(ctx, req))
	}

	content := m.response
	for _, r := range m.rules {
		if strings.Contains(prompt, r.contains) {
			if r.err != nil {
				return record(nil, r.err)
			}
			content = r.response
			break
		}
	}
	return record(TextResponse(req.Model, content), nil)
}

// TextResponse 构造只含一个 choice 的响应
func TextResponse(model, content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		CreatedAt: time.Now(),
	}
}

func promptOf(req *llm.ChatRequest) string {
	if req == nil {
		return ""
	}
	parts := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, "\n")
}

var _ llm.Provider = (*MockProvider)(nil)
