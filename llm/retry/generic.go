package retry

import "context"

// Do runs fn under r and returns its typed result.
//
//	resp, err := retry.Do(ctx, r, func() (*llm.ChatResponse, error) {
//	    return p.send(ctx, req)
//	})
func Do[T any](ctx context.Context, r Retryer, fn func() (T, error)) (T, error) {
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
