// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package snapshot implements the date-keyed snapshot store for district
// performance data.
//
// Each snapshot is a directory named by its ISO date under the store root,
// holding one JSON record per district, an optional aggregate rankings
// artifact, a manifest indexing what was written, and a metadata file that
// doubles as the commit marker. The writer's fixed write order (districts,
// rankings, manifest, metadata) plus temp-file-and-rename for each file is
// the store's whole consistency story: readers gate on metadata.json and can
// never observe a half-written snapshot.
//
// Reads are served through per-store TTL caches with singleflight collapsing,
// so a burst of identical requests costs one filesystem scan. Writes and
// deletes invalidate exactly the entries they made stale.
//
// The package also ships the closing-period update comparator (collection
// dates ordered, same-day refresh idempotent, older data never clobbers
// newer), a read-only integrity validator, and a recovery service that
// reconciles bookkeeping with what is verifiably on disk.
package snapshot
