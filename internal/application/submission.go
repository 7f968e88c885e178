// Package application orchestrates prompt submissions and model catalog
// synchronisation on top of the domain grouper and the infrastructure ports.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

const tracerName = "github.com/ahrav/go-consensus/internal/application"

// Metric names emitted by SubmissionService.
const (
	MetricSubmissionLatency = "submission_duration_seconds"
	MetricSubmissions       = "submissions_total"
	MetricModelOutcomes     = "submission_model_outcomes_total"
	MetricConsensusGroups   = "groups_per_submission"
	MetricTopAgreement      = "top_group_percentage"
)

// Defaults applied when options leave a value unset.
const (
	DefaultSubmissionTimeout = 30 * time.Second
	DefaultMaxModels         = 20
)

// SubmissionRequest asks for one prompt to be answered by several models.
type SubmissionRequest struct {
	// Text is the prompt. It must not be blank.
	Text string `json:"text"`
	// ModelIDs are registry IDs of the models to ask.
	ModelIDs []string `json:"modelIds"`
	// Similarity optionally requests fuzzy matching, which is not supported.
	Similarity *SimilarityOptions `json:"similarity,omitempty"`
}

// SimilarityOptions configures fuzzy response matching.
type SimilarityOptions struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

// SubmissionService validates a prompt, fans it out to the selected models,
// persists what came back and groups the answers.
type SubmissionService struct {
	registry    ports.ModelRegistry
	completions ports.CompletionProvider
	sink        ports.PersistenceSink
	metrics     ports.MetricsCollector
	logger      *slog.Logger
	tracer      trace.Tracer

	timeout   time.Duration
	maxModels int
	newID     func() string
	now       func() time.Time
}

// SubmissionOption customises a SubmissionService.
type SubmissionOption func(*SubmissionService)

// WithTimeout bounds each model's completion call.
func WithTimeout(d time.Duration) SubmissionOption {
	return func(s *SubmissionService) { s.timeout = d }
}

// WithMaxModels caps how many models one submission may select.
func WithMaxModels(n int) SubmissionOption {
	return func(s *SubmissionService) { s.maxModels = n }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) SubmissionOption {
	return func(s *SubmissionService) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SubmissionOption {
	return func(s *SubmissionService) { s.logger = l }
}

// WithIDGenerator replaces the record ID generator.
func WithIDGenerator(fn func() string) SubmissionOption {
	return func(s *SubmissionService) { s.newID = fn }
}

// WithClock replaces the time source used for record timestamps.
func WithClock(fn func() time.Time) SubmissionOption {
	return func(s *SubmissionService) { s.now = fn }
}

// NewSubmissionService creates a submission service.
func NewSubmissionService(
	registry ports.ModelRegistry,
	completions ports.CompletionProvider,
	sink ports.PersistenceSink,
	opts ...SubmissionOption,
) *SubmissionService {
	s := &SubmissionService{
		registry:    registry,
		completions: completions,
		sink:        sink,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		timeout:     DefaultSubmissionTimeout,
		maxModels:   DefaultMaxModels,
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome is the result slot of one model's completion call.
type outcome struct {
	completion ports.Completion
	err        error
}

// Submit runs a submission end to end.
//
// Errors:
//   - a *domain.ValidationError (matching domain.ErrInvalidSubmission or
//     domain.ErrSimilarityUnsupported) when the request is rejected;
//   - a *domain.AllModelsFailedError when no model answered;
//   - a wrapped persistence or registry error when the prompt could not be
//     stored or the models could not be looked up.
//
// Failures to store responses or groups are reported as warnings on the
// returned submission.
func (s *SubmissionService) Submit(ctx context.Context, req SubmissionRequest) (*domain.Submission, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "consensus.submit",
		trace.WithAttributes(attribute.Int("submission.models_requested", len(req.ModelIDs))),
	)
	defer span.End()

	submission, err := s.submit(ctx, span, req)

	status := "success"
	if err != nil {
		status = submissionStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.recordLatency(MetricSubmissionLatency, time.Since(start), map[string]string{"status": status})
	s.recordCounter(MetricSubmissions, 1, map[string]string{"status": status})

	return submission, err
}

func (s *SubmissionService) submit(ctx context.Context, span trace.Span, req SubmissionRequest) (*domain.Submission, error) {
	text := strings.TrimSpace(req.Text)
	if err := s.validate(text, req); err != nil {
		return nil, err
	}

	models, err := s.registry.Lookup(ctx, req.ModelIDs)
	if err != nil {
		return nil, fmt.Errorf("lookup models: %w", err)
	}

	prompt := domain.Prompt{ID: s.newID(), Text: text, CreatedAt: s.now().UTC()}
	if err := s.sink.SavePrompt(ctx, prompt); err != nil {
		return nil, fmt.Errorf("store prompt: %w", asPersistenceError("prompt", err))
	}
	span.SetAttributes(attribute.String("submission.prompt_id", prompt.ID))

	outcomes := s.fanOut(ctx, models, text)

	submission := &domain.Submission{
		PromptID:  prompt.ID,
		Responses: make([]domain.ResponseRecord, 0, len(models)),
		Failures:  make([]domain.ModelFailure, 0),
		Groups:    make([]domain.ConsensusGroup, 0),
	}
	for i, m := range models {
		o := outcomes[i]
		if o.err != nil {
			kind := domain.ClassifyFailure(o.err)
			submission.Failures = append(submission.Failures, domain.ModelFailure{
				ModelID: m.ID,
				Model:   m.Ref(),
				Kind:    kind,
				Message: o.err.Error(),
			})
			s.recordCounter(MetricModelOutcomes, 1, map[string]string{"status": string(kind)})
			continue
		}
		submission.Responses = append(submission.Responses, domain.ResponseRecord{
			ID:        s.newID(),
			PromptID:  prompt.ID,
			ModelID:   m.ID,
			Model:     m.Ref(),
			Text:      o.completion.Text,
			ElapsedMs: o.completion.Elapsed.Milliseconds(),
			TokensIn:  o.completion.TokensIn,
			TokensOut: o.completion.TokensOut,
			CreatedAt: s.now().UTC(),
		})
		s.recordCounter(MetricModelOutcomes, 1, map[string]string{"status": "success"})
	}
	submission.Failures = append(submission.Failures, unknownModelFailures(req.ModelIDs, models)...)

	span.SetAttributes(
		attribute.Int("submission.responses", len(submission.Responses)),
		attribute.Int("submission.failures", len(submission.Failures)),
	)

	if len(submission.Responses) == 0 {
		s.logger.WarnContext(ctx, "all models failed",
			"prompt_id", prompt.ID,
			"failures", len(submission.Failures),
		)
		return nil, &domain.AllModelsFailedError{PromptID: prompt.ID, Failures: submission.Failures}
	}

	if err := s.sink.SaveResponses(ctx, submission.Responses); err != nil {
		submission.Warnings = append(submission.Warnings, s.persistenceWarning(ctx, "responses", prompt.ID, err))
	}

	submission.Groups = s.group(ctx, models, submission.Responses)

	groupRecords := domain.GroupRecords(prompt.ID, submission.Groups, s.now().UTC())
	for i := range groupRecords {
		groupRecords[i].ID = s.newID()
	}
	if err := s.sink.SaveGroups(ctx, groupRecords); err != nil {
		submission.Warnings = append(submission.Warnings, s.persistenceWarning(ctx, "consensus groups", prompt.ID, err))
	}

	s.logger.InfoContext(ctx, "submission complete",
		"prompt_id", prompt.ID,
		"models", len(models),
		"responses", len(submission.Responses),
		"failures", len(submission.Failures),
		"groups", len(submission.Groups),
	)
	return submission, nil
}

// validate rejects blank prompts, empty or oversized model selections and
// similarity matching.
func (s *SubmissionService) validate(text string, req SubmissionRequest) error {
	verr := domain.NewValidationError("submission")
	if text == "" {
		verr.AddError("prompt text is required")
	}
	if len(req.ModelIDs) == 0 {
		verr.AddError("at least one model id is required")
	}
	if len(req.ModelIDs) > s.maxModels {
		verr.AddError(fmt.Sprintf("at most %d models may be selected, got %d", s.maxModels, len(req.ModelIDs)))
	}
	for _, id := range req.ModelIDs {
		if strings.TrimSpace(id) == "" {
			verr.AddError("model ids must not be blank")
			break
		}
	}
	if verr.HasErrors() {
		return verr
	}

	if req.Similarity != nil && req.Similarity.Enabled {
		verr.AddError("similarity matching is not supported; only exact normalized matching is available")
		verr.Err = domain.ErrSimilarityUnsupported
		return verr
	}
	return nil
}

// fanOut asks every model concurrently. Each call gets its own deadline and
// result slot; a failed call never cancels its siblings.
func (s *SubmissionService) fanOut(ctx context.Context, models []domain.Model, text string) []outcome {
	outcomes := make([]outcome, len(models))

	var g errgroup.Group
	for i, m := range models {
		g.Go(func() error {
			outcomes[i] = s.complete(ctx, m, text)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *SubmissionService) complete(ctx context.Context, m domain.Model, text string) outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "consensus.complete", trace.WithAttributes(
		attribute.String("model.id", m.ID),
		attribute.String("model.slug", m.Slug),
	))
	defer span.End()

	completion, err := s.completions.Complete(ctx, m.Slug, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("failure.kind", string(domain.ClassifyFailure(err))))
		return outcome{err: err}
	}

	span.SetAttributes(attribute.Int64("completion.elapsed_ms", completion.Elapsed.Milliseconds()))
	return outcome{completion: completion}
}

// group runs the consensus grouper over successful responses. Each response
// is identified by its model slug.
func (s *SubmissionService) group(ctx context.Context, models []domain.Model, responses []domain.ResponseRecord) []domain.ConsensusGroup {
	_, span := s.tracer.Start(ctx, "consensus.group")
	defer span.End()

	slugs := make(map[string]string, len(models))
	for _, m := range models {
		slugs[m.ID] = m.Slug
	}

	inputs := make([]domain.ModelResponse, len(responses))
	for i, r := range responses {
		inputs[i] = domain.ModelResponse{SourceID: slugs[r.ModelID], Text: r.Text}
	}

	groups := domain.AnalyzeConsensus(inputs)

	span.SetAttributes(attribute.Int("consensus.groups", len(groups)))
	s.recordHistogram(MetricConsensusGroups, float64(len(groups)), nil)
	if len(groups) > 0 {
		span.SetAttributes(attribute.Float64("consensus.top_percentage", groups[0].Percentage))
		s.recordHistogram(MetricTopAgreement, groups[0].Percentage, nil)
	}
	return groups
}

func (s *SubmissionService) persistenceWarning(ctx context.Context, entity, promptID string, err error) domain.Warning {
	s.logger.WarnContext(ctx, "failed to store submission records",
		"entity", entity,
		"prompt_id", promptID,
		"error", err,
	)
	return domain.Warning{
		Kind:    domain.FailurePersistence,
		Message: fmt.Sprintf("store %s: %v", entity, err),
	}
}

// unknownModelFailures reports requested IDs the registry did not return, in
// request order and without duplicates.
func unknownModelFailures(requested []string, found []domain.Model) []domain.ModelFailure {
	known := make(map[string]struct{}, len(found))
	for _, m := range found {
		known[m.ID] = struct{}{}
	}

	var failures []domain.ModelFailure
	for _, id := range requested {
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		failures = append(failures, domain.ModelFailure{
			ModelID: id,
			Model:   domain.ModelRef{ID: id},
			Kind:    domain.FailureUnknownModel,
			Message: fmt.Sprintf("model %q is not registered", id),
		})
	}
	return failures
}

func asPersistenceError(entity string, err error) error {
	var perr *ports.PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return ports.NewPersistenceError(entity, "save", err)
}

func submissionStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSubmission), errors.Is(err, domain.ErrSimilarityUnsupported):
		return "invalid"
	case errors.Is(err, domain.ErrAllModelsFailed):
		return "all_failed"
	default:
		return "error"
	}
}

func (s *SubmissionService) recordLatency(op string, d time.Duration, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.RecordLatency(op, d, labels)
	}
}

func (s *SubmissionService) recordCounter(metric string, v float64, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.RecordCounter(metric, v, labels)
	}
}

func (s *SubmissionService) recordHistogram(metric string, v float64, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.RecordHistogram(metric, v, labels)
	}
}
