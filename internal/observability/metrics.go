package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "litreview"

// Metrics holds the counters and histograms one CLI run records. All
// methods are safe on a nil *Metrics so components can run without them.
type Metrics struct {
	registry *prometheus.Registry

	// Searches counts searches by source and outcome (ok, empty, error, captcha).
	Searches *prometheus.CounterVec

	// SearchDuration observes search wall time in seconds, labeled by source.
	SearchDuration *prometheus.HistogramVec

	// RecordsFound counts records returned by searches after dedup.
	RecordsFound prometheus.Counter

	// Verifications counts human-verification prompts by outcome.
	Verifications *prometheus.CounterVec

	// Completions counts completion-stage outcomes (completed, failed, skipped).
	Completions *prometheus.CounterVec

	// LLMRequests counts LLM calls by provider and outcome.
	LLMRequests *prometheus.CounterVec

	// LLMDuration observes LLM call latency in seconds, labeled by provider.
	LLMDuration *prometheus.HistogramVec

	// StageDuration observes pipeline stage wall time in seconds.
	StageDuration *prometheus.HistogramVec
}

// NewMetrics registers the metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "total",
			Help:      "Searches by source and outcome.",
		}, []string{"source", "outcome"}),
		SearchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search wall time.",
			Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 300},
		}, []string{"source"}),
		RecordsFound: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "records_total",
			Help:      "Records returned by searches.",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "total",
			Help:      "Human-verification prompts by outcome.",
		}, []string{"outcome"}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "complete",
			Name:      "records_total",
			Help:      "Completion-stage outcomes.",
		}, []string{"status"}),
		LLMRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM API calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM API call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}, []string{"provider"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage wall time.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		}, []string{"stage"}),
	}
}

// RecordSearch records one search's outcome and duration.
func (m *Metrics) RecordSearch(source, outcome string, records int, seconds float64) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(source, outcome).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(seconds)
	m.RecordsFound.Add(float64(records))
}

// RecordVerification records a human-verification outcome.
func (m *Metrics) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

// RecordCompletion records one completion-stage outcome.
func (m *Metrics) RecordCompletion(status string) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(status).Inc()
}

// RecordLLM records one LLM call.
func (m *Metrics) RecordLLM(provider string, err error, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMRequests.WithLabelValues(provider, outcome).Inc()
	m.LLMDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordStage records a pipeline stage's wall time.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteFile writes every metric in text exposition format to path.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
