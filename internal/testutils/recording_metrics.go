package testutils

import (
	"maps"
	"sync"
	"time"

	"github.com/ahrav/go-consensus/internal/ports"
)

// MetricEvent is one call made to a RecordingMetrics collector.
type MetricEvent struct {
	Kind   string // latency, counter, gauge or histogram
	Name   string
	Value  float64
	Labels map[string]string
}

// RecordingMetrics implements ports.MetricsCollector by remembering every call.
type RecordingMetrics struct {
	mu     sync.Mutex
	events []MetricEvent
}

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

func (r *RecordingMetrics) record(kind, name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, MetricEvent{Kind: kind, Name: name, Value: value, Labels: maps.Clone(labels)})
}

// RecordLatency implements ports.MetricsCollector. The value is in seconds.
func (r *RecordingMetrics) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	r.record("latency", operation, d.Seconds(), labels)
}

// RecordCounter implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	r.record("counter", metric, value, labels)
}

// RecordGauge implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	r.record("gauge", metric, value, labels)
}

// RecordHistogram implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	r.record("histogram", metric, value, labels)
}

// Events returns every recorded event named name.
func (r *RecordingMetrics) Events(name string) []MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MetricEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Sum adds up the values of events named name whose labels contain every
// pair in match.
func (r *RecordingMetrics) Sum(name string, match map[string]string) float64 {
	var total float64
	for _, e := range r.Events(name) {
		ok := true
		for k, v := range match {
			if e.Labels[k] != v {
				ok = false
				break
			}
		}
		if ok {
			total += e.Value
		}
	}
	return total
}
