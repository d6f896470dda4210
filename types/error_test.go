package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "[UPSTREAM_ERROR] upstream failed: root", err.Error())
}

func TestError_WrappedChain(t *testing.T) {
	t.Parallel()

	inner := NewConfigError("docs path %q does not exist", "kb_docs")
	wrapped := fmt.Errorf("build retriever: %w", inner)

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrConfig, e.Code)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus)
	assert.True(t, IsErrorCode(wrapped, ErrConfig))
	assert.True(t, IsFatalConfig(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestIsFatalConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"config", NewError(ErrConfig, "x"), true},
		{"credential", NewError(ErrMissingCredential, "x"), true},
		{"template", NewError(ErrTemplate, "x"), true},
		{"upstream", NewError(ErrUpstreamError, "x"), false},
		{"plain", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatalConfig(tt.err))
		})
	}
}

func TestContextValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, ok := RunID(ctx)
	assert.False(t, ok)

	ctx = WithRunID(ctx, "run-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithPromptVersion(ctx, "v2")

	runID, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)

	reqID, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", reqID)

	v, ok := PromptVersion(ctx)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	_, ok = RunID(WithRunID(context.Background(), ""))
	assert.False(t, ok)
}
