// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// IssueType classifies one structural inconsistency found in the store.
type IssueType string

const (
	IssueMissingMetadata     IssueType = "missing_metadata"
	IssueCorruptMetadata     IssueType = "corrupt_metadata"
	IssueMissingManifest     IssueType = "missing_manifest"
	IssueCorruptManifest     IssueType = "corrupt_manifest"
	IssueMissingDistrictFile IssueType = "missing_district_file"
	IssueShortDistrictFile   IssueType = "short_district_file"
	IssueCountMismatch       IssueType = "count_mismatch"
	IssueOrphanedFile        IssueType = "orphaned_file"
)

// Issue is one inconsistency in one snapshot directory.
type Issue struct {
	SnapshotID string    `json:"snapshot_id"`
	Type       IssueType `json:"type"`
	Path       string    `json:"path,omitempty"`
	Detail     string    `json:"detail"`
}

// IntegrityReport is the validator's structured findings.
type IntegrityReport struct {
	CheckedAt         time.Time `json:"checked_at"`
	SnapshotsChecked  int       `json:"snapshots_checked"`
	Issues            []Issue   `json:"issues,omitempty"`
	AffectedSnapshots []string  `json:"affected_snapshots,omitempty"`
	Healthy           bool      `json:"healthy"`
}

// validateIntegrity walks every snapshot directory and reports structural
// inconsistencies: missing or unparseable manifest/metadata, files the
// manifest claims as success that are absent or implausibly sized, count
// disagreements between metadata and manifest, and orphaned district files.
// Validation never mutates the store.
func (s *Store) validateIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{CheckedAt: time.Now().UTC()}

	ids, err := s.reader.scanDirs()
	if err != nil {
		return nil, err
	}

	affected := make(map[string]bool)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.SnapshotsChecked++
		issues := s.checkSnapshotDir(id)
		if len(issues) > 0 {
			report.Issues = append(report.Issues, issues...)
			affected[id] = true
		}
	}

	for id := range affected {
		report.AffectedSnapshots = append(report.AffectedSnapshots, id)
	}
	sort.Strings(report.AffectedSnapshots)
	report.Healthy = len(report.Issues) == 0
	return report, nil
}

// checkSnapshotDir validates one snapshot directory.
func (s *Store) checkSnapshotDir(id string) []Issue {
	var issues []Issue
	dir := filepath.Join(s.guard.root, id)

	meta, metaErr := s.reader.metadata(id)
	switch {
	case metaErr != nil:
		issues = append(issues, Issue{
			SnapshotID: id,
			Type:       IssueCorruptMetadata,
			Path:       filepath.Join(dir, metadataFileName),
			Detail:     metaErr.Error(),
		})
	case meta == nil:
		issues = append(issues, Issue{
			SnapshotID: id,
			Type:       IssueMissingMetadata,
			Path:       filepath.Join(dir, metadataFileName),
			Detail:     "no commit marker; directory is invisible to readers (crashed or in-flight write)",
		})
	}

	manifest, manErr := s.reader.manifest(id)
	switch {
	case manErr != nil:
		issues = append(issues, Issue{
			SnapshotID: id,
			Type:       IssueCorruptManifest,
			Path:       filepath.Join(dir, manifestFileName),
			Detail:     manErr.Error(),
		})
	case manifest == nil:
		issues = append(issues, Issue{
			SnapshotID: id,
			Type:       IssueMissingManifest,
			Path:       filepath.Join(dir, manifestFileName),
			Detail:     "manifest file missing",
		})
	}

	if manifest != nil {
		issues = append(issues, s.checkManifestEntries(id, dir, manifest)...)
		issues = append(issues, s.checkOrphans(id, dir, manifest)...)
	}

	if meta != nil && manifest != nil {
		if meta.SuccessCount != manifest.SuccessCount() {
			issues = append(issues, Issue{
				SnapshotID: id,
				Type:       IssueCountMismatch,
				Detail: fmt.Sprintf("metadata records %d successful districts, manifest records %d",
					meta.SuccessCount, manifest.SuccessCount()),
			})
		}
	}

	return issues
}

// checkManifestEntries verifies every file the manifest claims as success
// actually exists with a plausible size.
func (s *Store) checkManifestEntries(id, dir string, manifest *Manifest) []Issue {
	var issues []Issue
	for districtID, entry := range manifest.Districts {
		if entry.Status != StatusSuccess {
			continue
		}
		path := filepath.Join(dir, entry.FileName)
		info, err := os.Stat(path)
		if err != nil {
			issues = append(issues, Issue{
				SnapshotID: id,
				Type:       IssueMissingDistrictFile,
				Path:       path,
				Detail:     fmt.Sprintf("manifest claims success for district %s but file is missing", districtID),
			})
			continue
		}
		// Plausibility: a district record is at minimum a JSON object.
		if info.Size() < 2 {
			issues = append(issues, Issue{
				SnapshotID: id,
				Type:       IssueShortDistrictFile,
				Path:       path,
				Detail:     fmt.Sprintf("district %s file is %d bytes", districtID, info.Size()),
			})
			continue
		}
		if entry.SizeBytes > 0 && info.Size() != entry.SizeBytes {
			issues = append(issues, Issue{
				SnapshotID: id,
				Type:       IssueShortDistrictFile,
				Path:       path,
				Detail: fmt.Sprintf("district %s file is %d bytes on disk, manifest records %d",
					districtID, info.Size(), entry.SizeBytes),
			})
		}
	}

	if manifest.RankingsPresent {
		path := filepath.Join(dir, rankingsFileName)
		if _, err := os.Stat(path); err != nil {
			issues = append(issues, Issue{
				SnapshotID: id,
				Type:       IssueMissingDistrictFile,
				Path:       path,
				Detail:     "manifest claims rankings artifact but file is missing",
			})
		}
	}
	return issues
}

// checkOrphans reports district record files present on disk that the
// manifest does not know about.
func (s *Store) checkOrphans(id, dir string, manifest *Manifest) []Issue {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var issues []Issue
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		districtID := districtIDFromFileName(e.Name())
		if districtID == "" {
			continue
		}
		if _, known := manifest.Districts[districtID]; !known {
			issues = append(issues, Issue{
				SnapshotID: id,
				Type:       IssueOrphanedFile,
				Path:       filepath.Join(dir, e.Name()),
				Detail:     fmt.Sprintf("district file %s not referenced by manifest", e.Name()),
			})
		}
	}
	return issues
}
