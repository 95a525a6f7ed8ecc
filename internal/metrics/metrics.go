// Package metrics provides Prometheus metrics for the digest agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "digestagent"

var (
	// LeaseOutcomes counts TryAcquire decisions by outcome.
	LeaseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_outcomes_total",
			Help:      "Refresh lease decisions by outcome",
		},
		[]string{"outcome"},
	)

	// ProviderFetches counts fetch attempts per provider and result (ok, empty, error).
	ProviderFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetches_total",
			Help:      "News provider fetch attempts",
		},
		[]string{"provider", "result"},
	)

	// ArticlesIngested counts per-article results of topic refreshes (created, skipped, failed).
	ArticlesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_ingested_total",
			Help:      "Articles processed by topic refreshes",
		},
		[]string{"result"},
	)

	// EnrichmentCalls counts enrichment backend calls; fallback marks a degraded answer.
	EnrichmentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_calls_total",
			Help:      "Summary and score requests by result",
		},
		[]string{"operation", "result"},
	)

	// RefreshDuration measures full topic refreshes.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of topic refreshes in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Sweeps counts periodic sweeps by kind.
	Sweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed periodic sweeps",
		},
		[]string{"kind"},
	)

	// DigestsSent counts digest deliveries by result.
	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_total",
			Help:      "Digest deliveries by result",
		},
		[]string{"result"},
	)
)

// RecordLeaseOutcome records a lease decision.
func RecordLeaseOutcome(outcome string) {
	LeaseOutcomes.WithLabelValues(outcome).Inc()
}

// RecordProviderFetch records one provider attempt.
func RecordProviderFetch(provider, result string) {
	ProviderFetches.WithLabelValues(provider, result).Inc()
}

// RecordArticle records one article result.
func RecordArticle(result string) {
	ArticlesIngested.WithLabelValues(result).Inc()
}

// RecordEnrichment records an enrichment call.
func RecordEnrichment(operation, result string) {
	EnrichmentCalls.WithLabelValues(operation, result).Inc()
}

// RecordRefresh observes a finished topic refresh.
func RecordRefresh(seconds float64) {
	RefreshDuration.Observe(seconds)
}

// RecordSweep records a finished sweep.
func RecordSweep(kind string) {
	Sweeps.WithLabelValues(kind).Inc()
}

// RecordDigest records a digest delivery attempt.
func RecordDigest(result string) {
	DigestsSent.WithLabelValues(result).Inc()
}
