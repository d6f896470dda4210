package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/kbroute/llm"
	"github.com/BaSui01/kbroute/llm/providers"
	"github.com/BaSui01/kbroute/llm/retry"
	"github.com/BaSui01/kbroute/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, srv *httptest.Server, maxRetries int) *Provider {
	t.Helper()
	p, err := New(Config{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Retry: &retry.RetryPolicy{
			MaxRetries:   maxRetries,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{APIKey: "  "}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingCredential, types.GetErrorCode(err))
	assert.True(t, types.IsFatalConfig(err))
}

func TestProvider_Name(t *testing.T) {
	p, err := New(Config{APIKey: "sk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestProvider_Completion(t *testing.T) {
	var got providers.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"created": 1700000000,
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Use the KB. "}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, 0)
	resp, err := p.Completion(context.Background(), llm.UserPrompt("", "decide", 20))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got.Model, "default model applies when request names none")
	assert.Equal(t, 20, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "decide", got.Messages[0].Content)
	assert.Nil(t, got.Temperature)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "Use the KB.", text)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())
}

func TestProvider_CompletionRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, 3)
	resp, err := p.Completion(context.Background(), llm.UserPrompt("gpt-4o-mini", "q", 250))
	require.NoError(t, err)
	text, _ := resp.Text()
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProvider_CompletionDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, 3)
	_, err := p.Completion(context.Background(), llm.UserPrompt("", "q", 20))
	require.Error(t, err)

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrUnauthorized, llmErr.Code)
	assert.Contains(t, llmErr.Message, "Incorrect API key provided")
	assert.Equal(t, int32(1), calls.Load())
}

func TestProvider_CompletionMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, 0)
	_, err := p.Completion(context.Background(), llm.UserPrompt("", "q", 20))
	require.Error(t, err)
	assert.True(t, llm.IsRetryable(err))
}

func TestProvider_CompletionRejectsEmptyRequest(t *testing.T) {
	p, err := New(Config{APIKey: "sk"}, nil)
	require.NoError(t, err)

	_, err = p.Completion(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrInvalidRequest, llmErr.Code)
}

func TestProvider_CompletionSendsTemperature(t *testing.T) {
	var got providers.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, 0)
	req := llm.UserPrompt("gpt-4o", "q", 5)
	req.Temperature = 0.2
	_, err := p.Completion(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-6)
	assert.Equal(t, "gpt-4o", got.Model)
}

func TestProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, 0)
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestProvider_HealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, 0)
	status, err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}
