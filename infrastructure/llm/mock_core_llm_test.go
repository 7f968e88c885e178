package llm

import (
	"context"
	"sync"
	"time"
)

// MockCoreLLM is a configurable CoreLLM used by the package tests.
type MockCoreLLM struct {
	BaseProvider

	mu sync.Mutex

	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	ResponseDelay time.Duration

	callCount int
	lastOpts  map[string]any
	lastCtx   context.Context
}

// NewMockCoreLLM creates a new mock CoreLLM with default successful behavior.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		BaseProvider: BaseProvider{model: "test-model"},
		Response:     "test response",
		TokensIn:     10,
		TokensOut:    20,
	}
}

// DoRequest implements the CoreLLM interface with configurable behavior.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.callCount++
	m.lastOpts = opts
	m.lastCtx = ctx
	delay, resp, in, out, err := m.ResponseDelay, m.Response, m.TokensIn, m.TokensOut, m.Error
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	if err != nil {
		return "", 0, 0, err
	}
	return resp, in, out, nil
}

// GetCallCount returns the number of DoRequest calls.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastOpts returns the options of the most recent call.
func (m *MockCoreLLM) LastOpts() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// LastContext returns the context of the most recent call.
func (m *MockCoreLLM) LastContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCtx
}
