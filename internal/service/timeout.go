package service

import (
	"context"
	"time"
)

// withTimeout runs op and races it against a client-side deadline. When the
// deadline fires first the caller gets a timeout error carrying
// timeoutMessage; the underlying operation is not cancelled server-side, so
// the remote effect may still land after the caller has given up. The result
// is resolved exactly once.
func withTimeout[T any](ctx context.Context, deadline time.Duration, timeoutMessage string, op func(ctx context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		value, err := op(opCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil && opCtx.Err() == context.DeadlineExceeded {
			var zero T
			return zero, NewTimeoutError(timeoutMessage, result.err)
		}
		return result.value, result.err
	case <-opCtx.Done():
		var zero T
		if opCtx.Err() == context.DeadlineExceeded {
			return zero, NewTimeoutError(timeoutMessage, opCtx.Err())
		}
		return zero, opCtx.Err()
	}
}

// withTimeoutErr is withTimeout for operations that only return an error.
func withTimeoutErr(ctx context.Context, deadline time.Duration, timeoutMessage string, op func(ctx context.Context) error) error {
	_, err := withTimeout(ctx, deadline, timeoutMessage, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
