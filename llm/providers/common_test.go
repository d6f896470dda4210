package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/kbroute/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		msg           string
		expectedCode  llm.ErrorCode
		expectedRetry bool
	}{
		{"401", http.StatusUnauthorized, "Invalid API key", llm.ErrUnauthorized, false},
		{"403", http.StatusForbidden, "Access denied", llm.ErrForbidden, false},
		{"429 rate", http.StatusTooManyRequests, "Rate limit reached for requests", llm.ErrRateLimited, true},
		{"429 quota", http.StatusTooManyRequests, "You exceeded your current quota", llm.ErrQuotaExceeded, false},
		{"400 plain", http.StatusBadRequest, "Invalid parameter", llm.ErrInvalidRequest, false},
		{"400 credit", http.StatusBadRequest, "Insufficient credit balance", llm.ErrQuotaExceeded, false},
		{"408", http.StatusRequestTimeout, "timeout", llm.ErrUpstreamTimeout, true},
		{"504", http.StatusGatewayTimeout, "timeout", llm.ErrUpstreamTimeout, true},
		{"502", http.StatusBadGateway, "bad gateway", llm.ErrUpstreamError, true},
		{"503", http.StatusServiceUnavailable, "unavailable", llm.ErrUpstreamError, true},
		{"529", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"500", http.StatusInternalServerError, "boom", llm.ErrUpstreamError, true},
		{"418", http.StatusTeapot, "teapot", llm.ErrUpstreamError, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := MapHTTPError(tc.status, tc.msg, "openai")
			require.NotNil(t, err)
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.Equal(t, tc.expectedRetry, err.Retryable)
			assert.Equal(t, tc.status, err.HTTPStatus)
			assert.Equal(t, tc.msg, err.Message)
			assert.Equal(t, "openai", err.Provider)
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai shape", `{"error":{"message":"bad key","type":"invalid_request_error"}}`, "bad key (type: invalid_request_error)"},
		{"openai no type", `{"error":{"message":"bad key"}}`, "bad key"},
		{"detail", `{"detail":"Unauthorized"}`, "Unauthorized"},
		{"message", `{"message":"nope"}`, "nope"},
		{"raw text", "upstream exploded\n", "upstream exploded"},
		{"empty error object", `{"error":{}}`, `{"error":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestFromWireResponse(t *testing.T) {
	wire := ChatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-mini",
		Choices: []ChatCompletionChoice{
			{Index: 0, FinishReason: "stop", Message: ChatMessage{Role: "assistant", Content: "kb"}},
		},
		Usage: &ChatCompletionUsage{PromptTokens: 10, CompletionTokens: 1, TotalTokens: 11},
	}

	resp := FromWireResponse(wire, "openai")
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "openai", resp.Provider)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, llm.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, "kb", resp.Choices[0].Message.Content)
	assert.Equal(t, 11, resp.Usage.TotalTokens)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "def", "fb"))
	assert.Equal(t, "def", ChooseModel(&llm.ChatRequest{}, "def", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}

func TestToWireMessages(t *testing.T) {
	out := ToWireMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi", Name: "u"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "user", out[1].Role)
	assert.Equal(t, "u", out[1].Name)
}
