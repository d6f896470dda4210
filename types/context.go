package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRunID         contextKey = "run_id"
	keyRequestID     contextKey = "request_id"
	keyPromptVersion contextKey = "prompt_version"
)

// WithRunID adds the pipeline run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithPromptVersion adds the generation prompt version to context.
func WithPromptVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, keyPromptVersion, version)
}

// PromptVersion extracts prompt version from context.
func PromptVersion(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyPromptVersion).(string)
	return v, ok && v != ""
}
