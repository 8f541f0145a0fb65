package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithTimeout_ResultBeforeDeadline(t *testing.T) {
	value, err := withTimeout(context.Background(), 100*time.Millisecond, "timed out", func(ctx context.Context) (string, error) {
		return "done", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "done", value)
}

func TestWithTimeout_ErrorBeforeDeadline(t *testing.T) {
	opErr := errors.New("store rejected the write")

	_, err := withTimeout(context.Background(), 100*time.Millisecond, "timed out", func(ctx context.Context) (string, error) {
		return "", opErr
	})

	assert.ErrorIs(t, err, opErr)
	assert.NotEqual(t, ErrorClassTimeout, Classify(err))
}

func TestWithTimeout_DeadlineFirst(t *testing.T) {
	started := time.Now()

	_, err := withTimeout(context.Background(), 20*time.Millisecond, "Saving the visit record timed out. Please try again.", func(ctx context.Context) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	assert.Error(t, err)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, ErrorClassTimeout, Classify(err))

	var classified *ClassifiedError
	assert.ErrorAs(t, err, &classified)
	assert.Equal(t, "Saving the visit record timed out. Please try again.", classified.Message)
}

// The operation keeps running after the caller gives up; its late resolution
// must not panic or overwrite the timeout outcome.
func TestWithTimeout_LateResolutionIsDropped(t *testing.T) {
	resolved := make(chan struct{})

	_, err := withTimeout(context.Background(), 10*time.Millisecond, "timed out", func(ctx context.Context) (string, error) {
		time.Sleep(50 * time.Millisecond)
		close(resolved)
		return "late", nil
	})

	assert.Equal(t, ErrorClassTimeout, Classify(err))

	select {
	case <-resolved:
	case <-time.After(time.Second):
		t.Fatal("operation never finished")
	}
}

func TestWithTimeout_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := withTimeout(ctx, time.Second, "timed out", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.Error(t, err)
	// Cancellation is not a deadline; it must not be dressed up as one.
	assert.NotEqual(t, ErrorClassTimeout, Classify(err))
}

func TestWithTimeoutErr(t *testing.T) {
	err := withTimeoutErr(context.Background(), 100*time.Millisecond, "timed out", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	err = withTimeoutErr(context.Background(), 10*time.Millisecond, "timed out", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, ErrorClassTimeout, Classify(err))
}
