// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package middleware provides HTTP middleware shared by the API surface:
// request id propagation, structured request logging, and Prometheus
// endpoint instrumentation.
package middleware
