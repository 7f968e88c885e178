package llm

import (
	"context"
	"time"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Metric names emitted by MetricsMiddleware.
const (
	MetricCompletionLatency = "completion_latency_seconds"
	MetricCompletions       = "completions_total"
	MetricCompletionTokens  = "completion_tokens_total"
)

// metricsLLM records latency, outcome and token usage of every request.
type metricsLLM struct {
	next      CoreLLM
	provider  string
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects request metrics labelled
// with provider, model and outcome.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{
			next:      next,
			provider:  provider,
			collector: collector,
		}
	}
}

// DoRequest executes the request while collecting metrics. Failed requests
// are labelled with their failure kind.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	if m.collector == nil {
		return response, tokensIn, tokensOut, err
	}

	status := "success"
	if err != nil {
		status = string(domain.ClassifyFailure(err))
	}

	labels := map[string]string{
		"provider": m.provider,
		"model":    ExtractOptionalString(opts, "model", m.next.GetModel(), IsNonEmptyString),
		"status":   status,
	}

	m.collector.RecordHistogram(MetricCompletionLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricCompletions, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricCompletionTokens, float64(tokensIn), withLabel(labels, "token_type", "input"))
		m.collector.RecordCounter(MetricCompletionTokens, float64(tokensOut), withLabel(labels, "token_type", "output"))
	}

	return response, tokensIn, tokensOut, err
}

// withLabel returns a copy of labels with key set. Collectors may retain the
// map they are given.
func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
