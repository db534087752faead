// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"time"
)

// UpdateReason explains a closing-period update decision.
type UpdateReason string

const (
	// ReasonNoExisting: nothing is stored for that date yet.
	ReasonNoExisting UpdateReason = "no_existing"

	// ReasonNewerData: the incoming collection is newer than the stored one.
	ReasonNewerData UpdateReason = "newer_data"

	// ReasonSameDayRefresh: equal collection dates; idempotent re-runs
	// refresh in place.
	ReasonSameDayRefresh UpdateReason = "same_day_refresh"

	// ReasonExistingNewer: the stored collection is newer; the write must
	// be skipped by the caller.
	ReasonExistingNewer UpdateReason = "existing_is_newer"
)

// UpdateDecision is the comparator's verdict. It is a pure decision over
// metadata; the caller is responsible for honoring it.
type UpdateDecision struct {
	ShouldUpdate bool         `json:"should_update"`
	Reason       UpdateReason `json:"reason"`

	// ExistingCollectionDate is the stored collection date the decision
	// compared against, when one existed.
	ExistingCollectionDate string `json:"existing_collection_date,omitempty"`
}

// decideUpdate compares an existing snapshot's collection date against the
// incoming one. Closing-period data is recollected as it stabilizes, and a
// stale older collection must never silently overwrite a newer one, while
// same-day recollection refreshes in place.
//
// Dates are ISO YYYY-MM-DD strings; they are parsed for validity and then
// compared, where equal dates mean refresh. An unparseable existing date
// fails open toward accepting new data.
func decideUpdate(existingCollectionDate, newCollectionDate string) UpdateDecision {
	existing, err := time.Parse(snapshotIDLayout, existingCollectionDate)
	if err != nil {
		return UpdateDecision{ShouldUpdate: true, Reason: ReasonNoExisting}
	}
	incoming, err := time.Parse(snapshotIDLayout, newCollectionDate)
	if err != nil {
		// An unparseable incoming date cannot be ordered; treat it as not
		// newer so a malformed request never clobbers good data.
		return UpdateDecision{
			ShouldUpdate:           false,
			Reason:                 ReasonExistingNewer,
			ExistingCollectionDate: existingCollectionDate,
		}
	}

	switch {
	case incoming.After(existing):
		return UpdateDecision{
			ShouldUpdate:           true,
			Reason:                 ReasonNewerData,
			ExistingCollectionDate: existingCollectionDate,
		}
	case incoming.Equal(existing):
		return UpdateDecision{
			ShouldUpdate:           true,
			Reason:                 ReasonSameDayRefresh,
			ExistingCollectionDate: existingCollectionDate,
		}
	default:
		return UpdateDecision{
			ShouldUpdate:           false,
			Reason:                 ReasonExistingNewer,
			ExistingCollectionDate: existingCollectionDate,
		}
	}
}

// collectionDateOf extracts the effective collection date from stored
// metadata, falling back to the as-of date and finally the snapshot id for
// snapshots written before closing-period fields existed.
func collectionDateOf(meta *Metadata) string {
	if meta.CollectionDate != "" {
		return meta.CollectionDate
	}
	if meta.AsOfDate != "" {
		return meta.AsOfDate
	}
	return meta.SnapshotID
}
