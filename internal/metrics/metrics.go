// Package metrics holds the Prometheus instrumentation for the
// evaluation pipeline and its providers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates all pipeline metric vectors.
type Metrics struct {
	// Evaluation metrics
	EvaluationsTotal     *prometheus.CounterVec
	EvaluationDuration   *prometheus.HistogramVec
	CoalescedEvaluations prometheus.Counter

	// Provider fan-out metrics
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Cache metrics
	CacheOps *prometheus.CounterVec

	// Score distribution
	TrustScore *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_evaluations_total",
				Help: "Total trust evaluations by recommendation",
			},
			[]string{"recommendation"},
		),

		EvaluationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trust_evaluation_duration_seconds",
				Help:    "End-to-end evaluation latency (cache misses only)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity_type"},
		),

		CoalescedEvaluations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trust_evaluations_coalesced_total",
				Help: "Evaluations answered by an in-flight duplicate query",
			},
		),

		ProviderRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_provider_requests_total",
				Help: "Provider dispatches by outcome",
			},
			[]string{"provider", "outcome"}, // outcome: ok, error, timeout
		),

		ProviderLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trust_provider_latency_seconds",
				Help:    "Per-provider evaluate latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		CacheOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trust_cache_ops_total",
				Help: "Result cache operations",
			},
			[]string{"op"}, // op: hit, miss, put, invalidate
		),

		TrustScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trust_score",
				Help:    "Distribution of published trust scores (0-100)",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"entity_type"},
		),
	}
}
