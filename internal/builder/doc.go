// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package builder orchestrates collection runs: paced upstream fetches per
// rostered district, raw-extract caching, normalization, and the committed
// snapshot write. The comparator's verdict decides whether a run proceeds at
// all, so closing-period recollection stays idempotent and a stale collection
// never overwrites a newer one.
package builder
