// Package metrics exposes Prometheus instruments for the catalog resolution
// pipeline.
//
// Usage:
//
//	metrics.RecordResolution("created")
//	metrics.RecordStrategyAttempt("pg_direct", "conflict")
//	metrics.RecordCatalogFetch("search", "ok")
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts resolution requests by outcome
	// (existing, created, not_found, failed).
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_resolutions_total",
			Help: "Total number of book resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// StrategyAttemptsTotal counts upsert strategy attempts by strategy and outcome.
	StrategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_upsert_strategy_attempts_total",
			Help: "Total number of upsert strategy attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// CatalogFetchesTotal counts external catalog calls by path (key, search, author).
	CatalogFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_external_fetches_total",
			Help: "Total number of external catalog fetches",
		},
		[]string{"path", "outcome"},
	)

	// FieldDegradationsTotal counts fields replaced by defaults while parsing.
	FieldDegradationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_field_degradations_total",
			Help: "Total number of catalog fields replaced by a default value",
		},
		[]string{"field"},
	)

	// LockAcquisitionsTotal counts dedup lock acquisitions.
	LockAcquisitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_dedup_lock_acquisitions_total",
			Help: "Total number of dedup lock acquisitions",
		},
	)

	// LockRegistrySize reports keys currently held or awaited.
	LockRegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_dedup_lock_registry_size",
			Help: "Number of keys currently present in the dedup lock registry",
		},
	)
)

func RecordResolution(outcome string) {
	ResolutionsTotal.WithLabelValues(outcome).Inc()
}

func RecordStrategyAttempt(strategy, outcome string) {
	StrategyAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

func RecordCatalogFetch(path, outcome string) {
	CatalogFetchesTotal.WithLabelValues(path, outcome).Inc()
}

func RecordFieldDegradation(field string) {
	FieldDegradationsTotal.WithLabelValues(field).Inc()
}
