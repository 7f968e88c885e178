// Package storage implements the model registry and persistence sink ports
// on top of an in-process store and MongoDB.
package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// MemoryStore keeps models, prompts, responses and groups in memory. It is
// safe for concurrent use and is the default backend for the CLI and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	models    map[string]domain.Model // by ID
	slugs     map[string]string       // slug -> ID
	prompts   map[string]domain.Prompt
	responses map[string][]domain.ResponseRecord // by prompt ID
	groups    map[string][]domain.GroupRecord    // by prompt ID
	newID     func() string
}

var (
	_ ports.ModelRegistry   = (*MemoryStore)(nil)
	_ ports.PersistenceSink = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models:    make(map[string]domain.Model),
		slugs:     make(map[string]string),
		prompts:   make(map[string]domain.Prompt),
		responses: make(map[string][]domain.ResponseRecord),
		groups:    make(map[string][]domain.GroupRecord),
		newID:     uuid.NewString,
	}
}

// List returns every model ordered by provider, then name.
func (s *MemoryStore) List(ctx context.Context) ([]domain.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

func (s *MemoryStore) sortedLocked() []domain.Model {
	out := make([]domain.Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	slices.SortFunc(out, compareModels)
	return out
}

// compareModels orders by provider, then name, then slug for stability.
func compareModels(a, b domain.Model) int {
	if c := cmp.Compare(a.Provider, b.Provider); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Slug, b.Slug)
}

// Lookup returns the models whose IDs appear in ids in List order.
func (s *MemoryStore) Lookup(ctx context.Context, ids []string) ([]domain.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Model, 0, len(ids))
	for _, m := range s.sortedLocked() {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Upsert inserts or replaces models keyed by slug. Existing models keep
// their ID; new models get a fresh one unless they carry their own.
func (s *MemoryStore) Upsert(ctx context.Context, models []domain.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range models {
		if id, ok := s.slugs[m.Slug]; ok {
			m.ID = id
		} else if m.ID == "" {
			m.ID = s.newID()
		}
		s.models[m.ID] = m
		s.slugs[m.Slug] = m.ID
	}
	return nil
}

// SetEnabled toggles a model by ID.
func (s *MemoryStore) SetEnabled(ctx context.Context, id string, enabled bool) (domain.Model, error) {
	if err := ctx.Err(); err != nil {
		return domain.Model{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.models[id]
	if !ok {
		return domain.Model{}, domain.ErrModelNotFound
	}
	m.Enabled = enabled
	s.models[id] = m
	return m, nil
}

// SavePrompt stores a prompt.
func (s *MemoryStore) SavePrompt(ctx context.Context, prompt domain.Prompt) error {
	if err := ctx.Err(); err != nil {
		return ports.NewPersistenceError("prompt", "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[prompt.ID] = prompt
	return nil
}

// SaveResponses appends response records to their prompts.
func (s *MemoryStore) SaveResponses(ctx context.Context, records []domain.ResponseRecord) error {
	if err := ctx.Err(); err != nil {
		return ports.NewPersistenceError("responses", "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.responses[r.PromptID] = append(s.responses[r.PromptID], r)
	}
	return nil
}

// SaveGroups appends group records to their prompts.
func (s *MemoryStore) SaveGroups(ctx context.Context, records []domain.GroupRecord) error {
	if err := ctx.Err(); err != nil {
		return ports.NewPersistenceError("consensus_groups", "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range records {
		g.Members = slices.Clone(g.Members)
		s.groups[g.PromptID] = append(s.groups[g.PromptID], g)
	}
	return nil
}

// Prompt returns a stored prompt.
func (s *MemoryStore) Prompt(id string) (domain.Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	return p, ok
}

// Responses returns the stored responses of a prompt in insertion order.
func (s *MemoryStore) Responses(promptID string) []domain.ResponseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.responses[promptID])
}

// Groups returns the stored consensus groups of a prompt in insertion order.
func (s *MemoryStore) Groups(promptID string) []domain.GroupRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.groups[promptID])
}
