// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package api exposes the snapshot store over HTTP: public read endpoints
// for current/by-date snapshots, listings, manifests, district records, and
// rankings, plus JWT-gated admin endpoints for writes, deletes, collection
// runs, integrity validation, and recovery.
package api
