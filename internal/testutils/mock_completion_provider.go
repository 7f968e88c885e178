// Package testutils provides deterministic fakes of the consensus ports for
// tests across packages.
package testutils

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-consensus/internal/ports"
)

// MockReply is a pre-configured outcome for one model slug.
type MockReply struct {
	// Text is returned as the completion text.
	Text string
	// Err is returned instead of a completion when non-nil.
	Err error
	// Delay holds the call open before answering. A context that ends first
	// wins and its error is returned.
	Delay time.Duration
	// TokensIn and TokensOut are reported as usage.
	TokensIn  int
	TokensOut int
}

// MockCompletionProvider implements ports.CompletionProvider with canned
// per-slug replies. Slugs without a reply fail.
type MockCompletionProvider struct {
	mu      sync.Mutex
	replies map[string]MockReply
	calls   []MockCall
}

// MockCall records one Complete invocation.
type MockCall struct {
	Slug        string
	Prompt      string
	HasDeadline bool
}

var _ ports.CompletionProvider = (*MockCompletionProvider)(nil)

// NewMockCompletionProvider creates a provider with no replies.
func NewMockCompletionProvider() *MockCompletionProvider {
	return &MockCompletionProvider{replies: make(map[string]MockReply)}
}

// Reply sets the outcome for slug and returns the provider for chaining.
func (m *MockCompletionProvider) Reply(slug string, reply MockReply) *MockCompletionProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[slug] = reply
	return m
}

// Answer is shorthand for a successful reply with text.
func (m *MockCompletionProvider) Answer(slug, text string) *MockCompletionProvider {
	return m.Reply(slug, MockReply{Text: text, TokensIn: 12, TokensOut: 1})
}

// Fail is shorthand for a failing reply.
func (m *MockCompletionProvider) Fail(slug string, err error) *MockCompletionProvider {
	return m.Reply(slug, MockReply{Err: err})
}

// Complete implements ports.CompletionProvider.
func (m *MockCompletionProvider) Complete(ctx context.Context, slug, prompt string) (ports.Completion, error) {
	_, hasDeadline := ctx.Deadline()

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Slug: slug, Prompt: prompt, HasDeadline: hasDeadline})
	reply, ok := m.replies[slug]
	m.mu.Unlock()

	if !ok {
		return ports.Completion{}, fmt.Errorf("mock: no reply configured for %q", slug)
	}

	start := time.Now()
	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ports.Completion{}, ctx.Err()
		}
	}

	if reply.Err != nil {
		return ports.Completion{}, reply.Err
	}
	return ports.Completion{
		Text:      strings.TrimSpace(reply.Text),
		Elapsed:   time.Since(start),
		TokensIn:  reply.TokensIn,
		TokensOut: reply.TokensOut,
	}, nil
}

// Calls returns the recorded calls in arrival order.
func (m *MockCompletionProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns the number of recorded calls.
func (m *MockCompletionProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
