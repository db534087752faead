// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package extract handles raw upstream extracts: a checksum-verified on-disk
// cache for the bytes as fetched, and a circuit-breaker wrapper for the
// upstream source itself.
package extract
