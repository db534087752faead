// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package metrics provides Prometheus instrumentation for the snapshot
// store, the extract circuit breaker, integrity sweeps, and the HTTP API.
// Metrics are registered via promauto at package load and exposed through
// the /metrics endpoint.
package metrics
