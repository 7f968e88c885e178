package domain

import (
	"context"
	"errors"
	"fmt"
)

// Common domain errors raised at the submission boundary.
var (
	// ErrInvalidSubmission indicates that a prompt submission failed validation.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrAllModelsFailed indicates that no selected model produced a response.
	// The grouper is never invoked when this error is returned.
	ErrAllModelsFailed = errors.New("all models failed")

	// ErrSimilarityUnsupported indicates that a caller asked for fuzzy
	// similarity matching. Exact normalized matching is the only mode.
	ErrSimilarityUnsupported = errors.New("similarity matching is not supported")

	// ErrModelNotFound indicates that a model identifier is not registered.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// FailureKind classifies why a single model's contribution was lost.
type FailureKind string

const (
	// FailureUpstreamTimeout means the completion call exceeded its deadline.
	FailureUpstreamTimeout FailureKind = "upstream_timeout"
	// FailureUpstreamHTTP means the upstream API rejected the call or was unreachable.
	FailureUpstreamHTTP FailureKind = "upstream_http_error"
	// FailureMalformedResponse means the upstream answered without usable text.
	FailureMalformedResponse FailureKind = "upstream_malformed_response"
	// FailurePersistence means the response was obtained but could not be stored.
	FailurePersistence FailureKind = "persistence_write_error"
	// FailureUnknownModel means no provider can serve the model's slug.
	FailureUnknownModel FailureKind = "unknown_model"
)

// FailureClassifier is implemented by errors that know their own failure kind.
type FailureClassifier interface {
	FailureKind() FailureKind
}

// ClassifyFailure maps an error chain to a FailureKind. Errors that carry
// their own classification win; bare deadline errors count as timeouts and
// anything else is treated as an upstream HTTP failure.
func ClassifyFailure(err error) FailureKind {
	var classified FailureClassifier
	if errors.As(err, &classified) {
		return classified.FailureKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureUpstreamTimeout
	}
	return FailureUpstreamHTTP
}

// AllModelsFailedError carries every failure of a submission in which no
// model succeeded. It matches ErrAllModelsFailed with errors.Is.
type AllModelsFailedError struct {
	// PromptID is set when the prompt was persisted before the fan-out.
	PromptID string

	// Failures lists one entry per selected model in registry order.
	Failures []ModelFailure
}

// Error implements the error interface for AllModelsFailedError.
func (e *AllModelsFailedError) Error() string {
	return fmt.Sprintf("%s: %d failure(s)", ErrAllModelsFailed, len(e.Failures))
}

// Is reports whether target is ErrAllModelsFailed.
func (e *AllModelsFailedError) Is(target error) bool { return target == ErrAllModelsFailed }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string

	// Err optionally pins a sentinel so callers can use errors.Is.
	Err error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap returns the pinned sentinel, defaulting to ErrInvalidSubmission.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidSubmission
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
