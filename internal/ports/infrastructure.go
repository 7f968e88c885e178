// Package ports declares the interfaces through which the consensus core
// reaches infrastructure: completion providers, the model registry, the
// persistence sink, caches and metrics.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-consensus/internal/domain"
)

// Completion is the outcome of one successful completion call.
type Completion struct {
	// Text is the generated text with surrounding whitespace trimmed.
	Text string

	// Elapsed is the wall-clock duration of the upstream call.
	Elapsed time.Duration

	// TokensIn and TokensOut are the usage figures reported upstream.
	// They are zero when the provider does not report usage.
	TokensIn  int
	TokensOut int
}

// CompletionProvider sends a single prompt to a single model.
// Implementations handle provider-specific details like authentication,
// request formatting, and response parsing. They must not retry.
type CompletionProvider interface {
	// Complete asks the model identified by slug (provider/name form) to
	// answer prompt. The context carries the per-model deadline.
	Complete(ctx context.Context, slug, prompt string) (Completion, error)
}

// CatalogEntry is one model advertised by the upstream routing API.
type CatalogEntry struct {
	// Slug is the upstream model identifier, for example "openai/gpt-4o".
	Slug string `json:"id"`

	// Name is the upstream display name, possibly empty.
	Name string `json:"name"`

	// ContextLength is the advertised context window; zero when unknown.
	ContextLength int `json:"context_length"`
}

// CatalogSource lists the models the upstream routing API can serve.
type CatalogSource interface {
	// ListModels returns upstream entries in upstream order.
	ListModels(ctx context.Context) ([]CatalogEntry, error)
}

// ModelRegistry stores the models that submissions may select.
type ModelRegistry interface {
	// List returns every registered model ordered by provider, then name.
	List(ctx context.Context) ([]domain.Model, error)

	// Lookup returns the registered models whose IDs appear in ids, in the
	// same order List would return them. Unknown IDs are skipped.
	Lookup(ctx context.Context, ids []string) ([]domain.Model, error)

	// Upsert inserts or replaces models keyed by slug. A model whose slug
	// already exists keeps its registry ID.
	Upsert(ctx context.Context, models []domain.Model) error

	// SetEnabled toggles a model and returns its updated state.
	// It returns domain.ErrModelNotFound when id is not registered.
	SetEnabled(ctx context.Context, id string, enabled bool) (domain.Model, error)
}

// PersistenceSink records prompts and their derived results.
// The core only writes through this interface.
type PersistenceSink interface {
	// SavePrompt stores a prompt. The prompt ID is assigned by the caller.
	SavePrompt(ctx context.Context, prompt domain.Prompt) error

	// SaveResponses stores successful completions for one prompt.
	SaveResponses(ctx context.Context, records []domain.ResponseRecord) error

	// SaveGroups stores the consensus groups computed for one prompt.
	SaveGroups(ctx context.Context, records []domain.GroupRecord) error
}

// CacheStore defines the interface for caching serialized values.
// Implementations could use Redis or in-memory storage. Callers own the
// encoding of values.
type CacheStore interface {
	// Get retrieves a cached value by key.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value in the cache with an expiration time.
	// A zero duration means the item doesn't expire.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Clear removes all values owned by this store.
	Clear(ctx context.Context) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like cache hits/misses, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like group counts or
	// agreement percentages.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
