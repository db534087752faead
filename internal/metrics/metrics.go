// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Snapshot store read/write paths and cache efficiency
// - Single-flight request collapsing
// - Raw extract source circuit breaker
// - Integrity sweeps
// - API endpoint latency and throughput

var (
	// Snapshot store metrics
	SnapshotReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_store_reads_total",
			Help: "Total snapshot store read operations",
		},
		[]string{"operation", "outcome"}, // outcome: "hit", "miss", "not_found", "error"
	)

	SnapshotReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_store_read_duration_seconds",
			Help:    "Duration of snapshot store read operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_store_writes_total",
			Help: "Total snapshot write operations by resulting status",
		},
		[]string{"status"}, // "success", "partial", "failed"
	)

	SnapshotDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_store_deletes_total",
			Help: "Total snapshot delete operations",
		},
	)

	SnapshotDistrictWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_store_district_write_failures_total",
			Help: "Total per-district write failures recorded in manifests",
		},
	)

	SingleflightShared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_store_singleflight_shared_total",
			Help: "Reads that attached to an already in-flight filesystem operation",
		},
		[]string{"key"},
	)

	// Integrity metrics
	IntegrityIssues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshot_store_integrity_issues",
			Help: "Issues found by the most recent integrity validation",
		},
	)

	IntegritySweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_store_integrity_sweeps_total",
			Help: "Integrity sweeps by verdict",
		},
		[]string{"verdict"}, // "healthy", "unhealthy", "error"
	)

	RecoveryActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_store_recovery_actions_total",
			Help: "Recovery actions applied by type",
		},
		[]string{"action"},
	)

	// Extract source circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "extract_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_circuit_breaker_requests_total",
			Help: "Circuit breaker requests by result",
		},
		[]string{"breaker", "result"}, // "success", "failure", "rejected"
	)

	ExtractCacheVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_cache_verifications_total",
			Help: "Extract cache checksum verifications by result",
		},
		[]string{"result"}, // "ok", "mismatch", "miss"
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, path string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRead records one snapshot store read with its outcome.
func RecordRead(operation, outcome string, duration time.Duration) {
	SnapshotReads.WithLabelValues(operation, outcome).Inc()
	SnapshotReadDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
