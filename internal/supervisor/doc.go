// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package supervisor builds the suture service tree: a maintenance layer for
// the periodic integrity sweep and an API layer for the HTTP server, with
// failure isolation between them. Supervisor events are logged through the
// zerolog-backed slog adapter.
package supervisor
