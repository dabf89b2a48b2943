package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Completion endpoint metrics
	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kgbench",
			Subsystem: "model",
			Name:      "completion_requests_total",
			Help:      "Total number of completion requests sent",
		},
		[]string{"profile", "schema", "outcome"},
	)

	CompletionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kgbench",
			Subsystem: "model",
			Name:      "completion_fallbacks_total",
			Help:      "Completion requests retried in plain-text mode after a structured-output rejection",
		},
		[]string{"profile"},
	)

	CompletionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kgbench",
			Subsystem: "model",
			Name:      "completion_latency_seconds",
			Help:      "Completion request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
		[]string{"profile", "schema"},
	)

	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kgbench",
			Subsystem: "model",
			Name:      "completion_tokens_total",
			Help:      "Token usage reported (or estimated) per completion request",
		},
		[]string{"profile", "kind"}, // kind: prompt|completion
	)

	// Benchmark run metrics
	QuestionsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kgbench",
			Subsystem: "run",
			Name:      "questions_evaluated_total",
			Help:      "Benchmark questions evaluated, by answer outcome",
		},
		[]string{"type", "outcome"},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kgbench",
			Subsystem: "run",
			Name:      "active",
			Help:      "Whether a benchmark run is currently executing (0 or 1)",
		},
	)

	QueuedRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kgbench",
			Subsystem: "run",
			Name:      "queued",
			Help:      "Number of runs waiting in the queue",
		},
	)

	// Diagnostics metrics
	DiagnosticsChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kgbench",
			Subsystem: "diagnostics",
			Name:      "checks_total",
			Help:      "Diagnostics checks executed, by level and status",
		},
		[]string{"level", "status"},
	)
)
