// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package metrics provides Prometheus instrumentation for the ETL core:
// pipeline phase timing and outcomes, upstream fetch behavior (retries,
// circuit breaker state), and database query performance. Exposed on
// /metrics by the dashboard API server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics

	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etl_run_duration_seconds",
			Help:    "Duration of a full source ETL run in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	PipelinePhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etl_phase_duration_seconds",
			Help:    "Duration of individual ETL phases in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "phase"}, // extract, transform, validate, load
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_runs_total",
			Help: "Total number of ETL runs by outcome",
		},
		[]string{"source", "outcome"}, // success, failure
	)

	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_records_extracted_total",
			Help: "Total raw records extracted from upstream APIs",
		},
		[]string{"source"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_records_skipped_total",
			Help: "Total records dropped by transform or validate",
		},
		[]string{"source", "phase"},
	)

	RecordsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_records_loaded_total",
			Help: "Total records written to the store by operation",
		},
		[]string{"source", "operation"}, // inserted, updated
	)

	// Upstream fetch metrics

	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epidata_requests_total",
			Help: "Total requests to the Delphi Epidata APIs by outcome",
		},
		[]string{"outcome"}, // success, failure, empty, rejected
	)

	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epidata_request_retries_total",
			Help: "Total retried Delphi Epidata requests",
		},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epidata_request_duration_seconds",
			Help:    "Duration of Delphi Epidata requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "epidata_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epidata_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Database metrics

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total DuckDB query errors",
		},
		[]string{"operation", "table"},
	)
)

// ObserveQuery records one database query's duration, and its error if any.
// Usage:
//
//	defer metrics.ObserveQuery("upsert", "public_observations", time.Now(), &err)
func ObserveQuery(operation, table string, start time.Time, errp *error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if errp != nil && *errp != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
