package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	t.Run("success logs at debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		wrapped := LoggingMiddleware("openrouter", logger)(NewMockCoreLLM())

		_, _, _, err := wrapped.DoRequest(context.Background(), "p", map[string]any{"model": "openai/gpt-4o"})
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "DEBUG", entry["level"])
		assert.Equal(t, "completion succeeded", entry["msg"])
		assert.Equal(t, "openai/gpt-4o", entry["model"])
		assert.Equal(t, float64(10), entry["tokens_in"])
	})

	t.Run("failure logs at warn with kind", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		mock := NewMockCoreLLM()
		mock.Error = errors.New("boom")
		wrapped := LoggingMiddleware("openrouter", logger)(mock)

		_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
		require.Error(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "upstream_http_error", entry["kind"])
		assert.Equal(t, "boom", entry["error"])
	})

	t.Run("debug suppressed at info level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		wrapped := LoggingMiddleware("openrouter", logger)(NewMockCoreLLM())

		_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)

		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})
}
