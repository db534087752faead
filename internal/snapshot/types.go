// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Status describes the overall outcome of a snapshot write.
type Status string

const (
	// StatusSuccess means every configured district persisted.
	StatusSuccess Status = "success"

	// StatusPartial means some districts failed or are missing.
	StatusPartial Status = "partial"

	// StatusFailed means upstream validation rejected the data outright.
	// Failed snapshots are still persisted so the failure is auditable.
	StatusFailed Status = "failed"
)

// On-disk file names within a snapshot directory. The metadata file is the
// commit marker: a snapshot is visible to readers only once it exists.
const (
	metadataFileName  = "metadata.json"
	manifestFileName  = "manifest.json"
	rankingsFileName  = "all-districts-rankings.json"
	districtFilePref  = "district_"
	districtFileSuf   = ".json"
	recoveryDirName   = ".recovery"
	snapshotIDLayout  = "2006-01-02"
)

// districtFileName returns the record file name for a district.
func districtFileName(districtID string) string {
	return districtFilePref + districtID + districtFileSuf
}

// districtIDFromFileName extracts the district id from a record file name.
// Returns "" when the name is not a district record file.
func districtIDFromFileName(name string) string {
	if !strings.HasPrefix(name, districtFilePref) || !strings.HasSuffix(name, districtFileSuf) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, districtFilePref), districtFileSuf)
}

// DistrictError records one failed district operation.
type DistrictError struct {
	DistrictID string    `json:"district_id"`
	Operation  string    `json:"operation"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Retryable  bool      `json:"retryable"`
}

// DistrictResult is one district's persisted record. The statistics payload
// is opaque to the store beyond the identifier fields.
type DistrictResult struct {
	DistrictID  string          `json:"district_id"`
	DisplayName string          `json:"display_name,omitempty"`
	CollectedAt time.Time       `json:"collected_at"`
	Status      Status          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Stats       json.RawMessage `json:"stats,omitempty"`
}

// SourceMetadata describes where the snapshot's data came from and which
// calendar date it logically represents.
type SourceMetadata struct {
	Source string `json:"source"`

	// AsOfDate is the date the data was reported as of (YYYY-MM-DD).
	AsOfDate string `json:"as_of_date"`

	// Closing-period fields: data for the tail of a reporting period is
	// recollected while it stabilizes, so the collection date can differ
	// from the logical date the snapshot represents.
	IsClosingPeriodData bool   `json:"is_closing_period_data"`
	CollectionDate      string `json:"collection_date,omitempty"`
	LogicalDate         string `json:"logical_date,omitempty"`
}

// Snapshot is the unit of persistence for one calendar date.
type Snapshot struct {
	// ID is the ISO calendar date (YYYY-MM-DD) the data represents.
	// It doubles as the directory name under the store root.
	ID string `json:"id"`

	CreatedAt time.Time `json:"created_at"`

	SchemaVersion      string `json:"schema_version,omitempty"`
	CalculationVersion string `json:"calculation_version,omitempty"`
	RankingVersion     string `json:"ranking_version,omitempty"`

	Status         Status          `json:"status"`
	Errors         []string        `json:"errors,omitempty"`
	DistrictErrors []DistrictError `json:"district_errors,omitempty"`

	Districts []DistrictResult `json:"districts"`

	Metadata SourceMetadata `json:"metadata"`
}

// Metadata is the per-snapshot commit marker file (metadata.json). It is
// written last by the writer; readers gate snapshot visibility on it.
type Metadata struct {
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`

	SchemaVersion      string `json:"schema_version,omitempty"`
	CalculationVersion string `json:"calculation_version,omitempty"`
	RankingVersion     string `json:"ranking_version,omitempty"`

	Status        Status `json:"status"`
	DistrictCount int    `json:"district_count"`
	SuccessCount  int    `json:"success_count"`
	FailedCount   int    `json:"failed_count"`

	Errors         []string        `json:"errors,omitempty"`
	DistrictErrors []DistrictError `json:"district_errors,omitempty"`

	Source              string `json:"source,omitempty"`
	AsOfDate            string `json:"as_of_date,omitempty"`
	IsClosingPeriodData bool   `json:"is_closing_period_data"`
	CollectionDate      string `json:"collection_date,omitempty"`
	LogicalDate         string `json:"logical_date,omitempty"`
}

// ManifestEntry records one district record file in the manifest.
type ManifestEntry struct {
	FileName  string    `json:"file_name"`
	Status    Status    `json:"status"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
	Error     string    `json:"error,omitempty"`
}

// Manifest is the per-snapshot index of what was written (manifest.json).
type Manifest struct {
	SnapshotID  string                   `json:"snapshot_id"`
	GeneratedAt time.Time                `json:"generated_at"`
	Districts   map[string]ManifestEntry `json:"districts"`

	RankingsPresent   bool  `json:"rankings_present"`
	RankingsSizeBytes int64 `json:"rankings_size_bytes,omitempty"`
}

// SuccessCount returns the number of manifest entries with success status.
func (m *Manifest) SuccessCount() int {
	n := 0
	for _, e := range m.Districts {
		if e.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// FailedCount returns the number of manifest entries with failed status.
func (m *Manifest) FailedCount() int {
	n := 0
	for _, e := range m.Districts {
		if e.Status == StatusFailed {
			n++
		}
	}
	return n
}

// WriteOptions adjusts a snapshot write.
type WriteOptions struct {
	// OverrideDate stores the snapshot under a directory name different
	// from the data's own as-of date. Used for closing-period logical-date
	// remapping: data collected on date D for logical date L is stored
	// under L.
	OverrideDate string
}

// ListOptions filters and bounds a snapshot listing. Filters apply after the
// listing is assembled, sorted newest-first by creation time.
type ListOptions struct {
	Status             Status
	SchemaVersion      string
	CalculationVersion string
	RankingVersion     string
	CreatedAfter       time.Time
	CreatedBefore      time.Time
	MinDistricts       int
	Limit              int
}
