package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCompletionProvider(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockCompletionProvider().
		Answer("openai/gpt-4o", " Paris ").
		Fail("cohere/command-r", boom).
		Reply("slow/model", MockReply{Text: "late", Delay: time.Second})

	completion, err := m.Complete(context.Background(), "openai/gpt-4o", "q")
	require.NoError(t, err)
	assert.Equal(t, "Paris", completion.Text)
	assert.Equal(t, 12, completion.TokensIn)

	_, err = m.Complete(context.Background(), "cohere/command-r", "q")
	assert.ErrorIs(t, err, boom)

	_, err = m.Complete(context.Background(), "unknown/model", "q")
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Complete(ctx, "slow/model", "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	calls := m.Calls()
	require.Len(t, calls, 4)
	assert.False(t, calls[0].HasDeadline)
	assert.True(t, calls[3].HasDeadline)
	assert.Equal(t, 4, m.CallCount())
}

func TestRecordingMetrics_Sum(t *testing.T) {
	var r RecordingMetrics
	r.RecordCounter("c", 1, map[string]string{"status": "success"})
	r.RecordCounter("c", 2, map[string]string{"status": "upstream_timeout"})
	r.RecordCounter("c", 3, map[string]string{"status": "success"})

	assert.Equal(t, 4.0, r.Sum("c", map[string]string{"status": "success"}))
	assert.Equal(t, 6.0, r.Sum("c", nil))
	assert.Len(t, r.Events("c"), 3)
}
