package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contextKey string

const testContextKey contextKey = "test-key"

func TestTimeoutMiddleware_SucceedsWithinTimeout(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.ResponseDelay = 10 * time.Millisecond
	wrapped := TimeoutMiddleware(200 * time.Millisecond)(mock)

	response, tokensIn, tokensOut, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.NoError(t, err, "request should succeed within timeout")
	assert.Equal(t, "test response", response)
	assert.Equal(t, 10, tokensIn)
	assert.Equal(t, 20, tokensOut)
	assert.Equal(t, 1, mock.GetCallCount())
}

func TestTimeoutMiddleware_FailsWhenExceedingTimeout(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.ResponseDelay = time.Second
	timeout := 50 * time.Millisecond
	wrapped := TimeoutMiddleware(timeout)(mock)

	start := time.Now()
	_, _, _, err := wrapped.DoRequest(context.Background(), "test prompt", nil)
	duration := time.Since(start)

	require.Error(t, err, "request should timeout")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "error should be deadline exceeded: %v", err)
	assert.GreaterOrEqual(t, duration, timeout)
	assert.Less(t, duration, 500*time.Millisecond, "should not wait for the full delay")
}

func TestTimeoutMiddleware_RespectsShorterParentDeadline(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.ResponseDelay = time.Second
	wrapped := TimeoutMiddleware(5 * time.Second)(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, _, err := wrapped.DoRequest(ctx, "test prompt", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTimeoutMiddleware_HandlesImmediateError(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("immediate error")
	wrapped := TimeoutMiddleware(time.Second)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.Error(t, err)
	assert.Equal(t, "immediate error", err.Error(), "should return original error")
}

func TestTimeoutMiddleware_DisabledForNonPositiveTimeout(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := TimeoutMiddleware(0)(mock)

	assert.Same(t, mock, wrapped, "zero timeout should not wrap")
}

func TestTimeoutMiddleware_PreservesContextValuesAndModel(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := TimeoutMiddleware(time.Second)(mock)

	ctx := context.WithValue(context.Background(), testContextKey, "test-value")
	opts := map[string]any{"temperature": 0.7}
	_, _, _, err := wrapped.DoRequest(ctx, "test prompt", opts)

	require.NoError(t, err)
	assert.Equal(t, opts, mock.LastOpts())
	assert.Equal(t, "test-value", mock.LastContext().Value(testContextKey))
	_, hasDeadline := mock.LastContext().Deadline()
	assert.True(t, hasDeadline, "inner context should carry a deadline")

	wrapped.SetModel("new-model")
	assert.Equal(t, "new-model", mock.GetModel())
	assert.Equal(t, "new-model", wrapped.GetModel())
}
