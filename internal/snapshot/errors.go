// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"errors"
	"fmt"
)

// Input errors. Rejected synchronously before any filesystem call and never
// retried internally.
var (
	// ErrInvalidSnapshotID indicates a snapshot id outside [A-Za-z0-9_-]+.
	ErrInvalidSnapshotID = errors.New("invalid snapshot id")

	// ErrInvalidDistrictID indicates a district id outside [A-Za-z0-9]+.
	ErrInvalidDistrictID = errors.New("invalid district id")

	// ErrPathTraversal indicates a resolved path escaping the store root.
	ErrPathTraversal = errors.New("path escapes store root")
)

// ReadError wraps a read or parse failure that is not plain absence.
// Absence is never an error on the read path; it is a nil result.
type ReadError struct {
	// Op names the failing operation, e.g. "read metadata".
	Op string

	SnapshotID string
	DistrictID string

	// Err is the underlying cause.
	Err error
}

func (e *ReadError) Error() string {
	if e.DistrictID != "" {
		return fmt.Sprintf("%s: snapshot %s district %s: %v", e.Op, e.SnapshotID, e.DistrictID, e.Err)
	}
	if e.SnapshotID != "" {
		return fmt.Sprintf("%s: snapshot %s: %v", e.Op, e.SnapshotID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// readErr builds a ReadError for a snapshot-scoped failure.
func readErr(op, snapshotID string, err error) *ReadError {
	return &ReadError{Op: op, SnapshotID: snapshotID, Err: err}
}
