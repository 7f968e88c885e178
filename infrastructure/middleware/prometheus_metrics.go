// Package middleware provides cross-cutting concerns for the consensus
// service.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-consensus/infrastructure/llm"
	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Namespace prefixes every metric exported by PrometheusMetrics.
const Namespace = "consensus"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// Known metric names are routed to dedicated vectors; anything else lands in
// generic per-operation vectors.
type PrometheusMetrics struct {
	completionLatency *prometheus.HistogramVec
	completions       *prometheus.CounterVec
	completionTokens  *prometheus.CounterVec

	submissionLatency *prometheus.HistogramVec
	submissions       *prometheus.CounterVec
	modelOutcomes     *prometheus.CounterVec
	groupCount        prometheus.Histogram
	topAgreement      prometheus.Histogram

	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
	values           *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the metric vectors and registers them with
// reg. A nil reg selects the default Prometheus registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		// Per-model completion metrics fed by llm.MetricsMiddleware.
		completionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      llm.MetricCompletionLatency,
				Help:      "Latency of upstream completion calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      llm.MetricCompletions,
				Help:      "Upstream completion calls by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		completionTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      llm.MetricCompletionTokens,
				Help:      "Tokens reported by upstream completion calls.",
			},
			[]string{"provider", "model", "token_type"},
		),

		// Submission metrics fed by application.SubmissionService.
		submissionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      application.MetricSubmissionLatency,
				Help:      "End-to-end duration of prompt submissions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      application.MetricSubmissions,
				Help:      "Prompt submissions by outcome.",
			},
			[]string{"status"},
		),
		modelOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      application.MetricModelOutcomes,
				Help:      "Per-model outcomes within submissions.",
			},
			[]string{"status"},
		),
		groupCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      application.MetricConsensusGroups,
				Help:      "Number of consensus groups per submission.",
				Buckets:   prometheus.LinearBuckets(1, 1, 15),
			},
		),
		topAgreement: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      application.MetricTopAgreement,
				Help:      "Share of responses in the largest consensus group.",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),

		// Generic metrics for everything else.
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Execution time of other operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "operations_total",
				Help:      "Counts of other events.",
			},
			[]string{"metric", "status"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "system_state",
				Help:      "Current system state values.",
			},
			[]string{"metric"},
		),
		values: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "observed_values",
				Help:      "Distributions of other observed values.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	switch operation {
	case application.MetricSubmissionLatency:
		pm.submissionLatency.WithLabelValues(label(labels, "status")).Observe(duration.Seconds())
	case llm.MetricCompletionLatency:
		pm.completionLatency.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Observe(duration.Seconds())
	default:
		pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricCompletions:
		pm.completions.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Add(value)
	case llm.MetricCompletionTokens:
		pm.completionTokens.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "token_type"),
		).Add(value)
	case application.MetricSubmissions:
		pm.submissions.WithLabelValues(label(labels, "status")).Add(value)
	case application.MetricModelOutcomes:
		pm.modelOutcomes.WithLabelValues(label(labels, "status")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, label(labels, "status")).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricCompletionLatency:
		pm.completionLatency.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Observe(value)
	case application.MetricConsensusGroups:
		pm.groupCount.Observe(value)
	case application.MetricTopAgreement:
		pm.topAgreement.Observe(value)
	default:
		pm.values.WithLabelValues(metric).Observe(value)
	}
}

// label returns labels[key] or "unknown".
func label(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
