package testutils

import (
	"context"
	"slices"
	"sync"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// RecordingSink implements ports.PersistenceSink in memory and can be told
// to fail individual operations.
type RecordingSink struct {
	mu sync.Mutex

	// PromptErr, ResponsesErr and GroupsErr are returned by the matching
	// Save call when non-nil. Nothing is recorded for a failing call.
	PromptErr    error
	ResponsesErr error
	GroupsErr    error

	prompts   []domain.Prompt
	responses []domain.ResponseRecord
	groups    []domain.GroupRecord
}

var _ ports.PersistenceSink = (*RecordingSink)(nil)

// SavePrompt implements ports.PersistenceSink.
func (s *RecordingSink) SavePrompt(_ context.Context, prompt domain.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PromptErr != nil {
		return s.PromptErr
	}
	s.prompts = append(s.prompts, prompt)
	return nil
}

// SaveResponses implements ports.PersistenceSink.
func (s *RecordingSink) SaveResponses(_ context.Context, records []domain.ResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ResponsesErr != nil {
		return s.ResponsesErr
	}
	s.responses = append(s.responses, records...)
	return nil
}

// SaveGroups implements ports.PersistenceSink.
func (s *RecordingSink) SaveGroups(_ context.Context, records []domain.GroupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GroupsErr != nil {
		return s.GroupsErr
	}
	s.groups = append(s.groups, records...)
	return nil
}

// Prompts returns the stored prompts.
func (s *RecordingSink) Prompts() []domain.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.prompts)
}

// Responses returns the stored response records.
func (s *RecordingSink) Responses() []domain.ResponseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.responses)
}

// Groups returns the stored group records.
func (s *RecordingSink) Groups() []domain.GroupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.groups)
}
