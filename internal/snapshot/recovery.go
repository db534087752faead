// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/distrikt/internal/metrics"
)

// RecoveryOptions controls automated corruption recovery.
type RecoveryOptions struct {
	// CreateBackups copies each affected snapshot directory aside before
	// mutating it.
	CreateBackups bool `json:"create_backups"`

	// RemoveCorruptedFiles deletes district files that fail a basic
	// parse/size sanity check instead of leaving them in place.
	RemoveCorruptedFiles bool `json:"remove_corrupted_files"`

	// ForceRecovery rebuilds metadata even when the original commit
	// marker is missing or unreadable. The rebuilt snapshot is marked
	// partial since its original status cannot be known.
	ForceRecovery bool `json:"force_recovery"`
}

// RecoveryAction records one corrective step taken.
type RecoveryAction struct {
	SnapshotID string `json:"snapshot_id"`
	Action     string `json:"action"` // "quarantine", "remove_file", "rebuild_manifest", "rebuild_metadata"
	Path       string `json:"path,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// RecoveryResult reports what automated recovery did and what remains.
type RecoveryResult struct {
	StartedAt  time.Time        `json:"started_at"`
	Report     *IntegrityReport `json:"report"`
	Actions    []RecoveryAction `json:"actions,omitempty"`
	Recovered  []string         `json:"recovered,omitempty"`
	Unresolved []Issue          `json:"unresolved,omitempty"`
}

// UrgencyTier grades how urgently an operator should act.
type UrgencyTier string

const (
	UrgencyLow      UrgencyTier = "low"
	UrgencyMedium   UrgencyTier = "medium"
	UrgencyHigh     UrgencyTier = "high"
	UrgencyCritical UrgencyTier = "critical"
)

// RecoveryGuidance is the operator-facing view of store health: the current
// integrity verdict, ordered manual steps, and an urgency tier for cases
// automated recovery cannot fully resolve.
type RecoveryGuidance struct {
	Report  *IntegrityReport `json:"report"`
	Urgency UrgencyTier      `json:"urgency"`
	Steps   []string         `json:"steps"`
}

// recoverFromCorruption applies corrective actions guided by a fresh
// integrity report. Recovery only reconciles bookkeeping (manifest and
// metadata) with what is verifiably on disk; it never fabricates missing
// district data.
func (s *Store) recoverFromCorruption(ctx context.Context, opts RecoveryOptions) (*RecoveryResult, error) {
	report, err := s.validateIntegrity(ctx)
	if err != nil {
		return nil, err
	}

	result := &RecoveryResult{
		StartedAt: time.Now().UTC(),
		Report:    report,
	}
	if report.Healthy {
		return result, nil
	}

	issuesByID := make(map[string][]Issue)
	for _, issue := range report.Issues {
		issuesByID[issue.SnapshotID] = append(issuesByID[issue.SnapshotID], issue)
	}

	for _, id := range report.AffectedSnapshots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		actions, unresolved, err := s.recoverSnapshot(id, issuesByID[id], opts)
		if err != nil {
			return nil, fmt.Errorf("recover snapshot %s: %w", id, err)
		}
		result.Actions = append(result.Actions, actions...)
		if len(unresolved) > 0 {
			result.Unresolved = append(result.Unresolved, unresolved...)
		} else {
			result.Recovered = append(result.Recovered, id)
		}
		for _, a := range actions {
			metrics.RecoveryActions.WithLabelValues(a.Action).Inc()
		}
	}
	sort.Strings(result.Recovered)
	return result, nil
}

// recoverSnapshot applies recovery to one snapshot directory.
func (s *Store) recoverSnapshot(id string, issues []Issue, opts RecoveryOptions) ([]RecoveryAction, []Issue, error) {
	var actions []RecoveryAction
	dir := filepath.Join(s.guard.root, id)

	if opts.CreateBackups {
		backupDir, err := s.quarantine(id, dir)
		if err != nil {
			return nil, nil, err
		}
		actions = append(actions, RecoveryAction{
			SnapshotID: id,
			Action:     "quarantine",
			Path:       backupDir,
		})
	}

	// Pass 1: optionally drop unparseable district files so the rebuild
	// below only sees verifiably good records.
	if opts.RemoveCorruptedFiles {
		removed, err := s.pruneCorruptFiles(id, dir)
		if err != nil {
			return nil, nil, err
		}
		actions = append(actions, removed...)
	}

	// Pass 2: rebuild the manifest from the district files that remain.
	manifest, rebuildActions, err := s.rebuildManifest(id, dir)
	if err != nil {
		return nil, nil, err
	}
	actions = append(actions, rebuildActions...)

	// Pass 3: reconcile metadata with the rebuilt manifest.
	meta, metaErr := s.reader.metadata(id)
	hadMetadata := metaErr == nil && meta != nil

	var unresolved []Issue
	switch {
	case hadMetadata:
		meta.SuccessCount = manifest.SuccessCount()
		meta.FailedCount = manifest.FailedCount()
		meta.DistrictCount = len(manifest.Districts)
		if meta.Status == StatusSuccess && meta.FailedCount > 0 {
			meta.Status = StatusPartial
		}
		if err := s.writeMetadataFile(dir, meta); err != nil {
			return nil, nil, err
		}
		actions = append(actions, RecoveryAction{
			SnapshotID: id,
			Action:     "rebuild_metadata",
			Detail:     "counts reconciled with manifest",
		})
	case opts.ForceRecovery:
		// Original commit marker is gone; synthesize one from disk state.
		// Status is partial because the original intent cannot be known.
		meta = &Metadata{
			SnapshotID:    id,
			CreatedAt:     time.Now().UTC(),
			Status:        StatusPartial,
			DistrictCount: len(manifest.Districts),
			SuccessCount:  manifest.SuccessCount(),
			FailedCount:   manifest.FailedCount(),
			Errors:        []string{"metadata rebuilt by recovery; original commit marker was lost"},
		}
		if err := s.writeMetadataFile(dir, meta); err != nil {
			return nil, nil, err
		}
		actions = append(actions, RecoveryAction{
			SnapshotID: id,
			Action:     "rebuild_metadata",
			Detail:     "commit marker synthesized from disk state (force)",
		})
	default:
		// Without the commit marker and without force, leave the
		// directory invisible and report it for manual review.
		for _, issue := range issues {
			if issue.Type == IssueMissingMetadata || issue.Type == IssueCorruptMetadata {
				unresolved = append(unresolved, issue)
			}
		}
	}

	return actions, unresolved, nil
}

// quarantine copies a snapshot directory into the store's recovery area
// before recovery mutates it.
func (s *Store) quarantine(id, dir string) (string, error) {
	backupDir := filepath.Join(s.guard.root, recoveryDirName, fmt.Sprintf("%s-%d", id, time.Now().Unix()))
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read snapshot directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(dir, e.Name()), filepath.Join(backupDir, e.Name())); err != nil {
			return "", err
		}
	}
	return backupDir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Sync()
}

// pruneCorruptFiles removes district files that fail a parse/size sanity check.
func (s *Store) pruneCorruptFiles(id, dir string) ([]RecoveryAction, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}
	var actions []RecoveryAction
	for _, e := range entries {
		if e.IsDir() || districtIDFromFileName(e.Name()) == "" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if districtFileHealthy(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove corrupt file %s: %w", path, err)
		}
		actions = append(actions, RecoveryAction{
			SnapshotID: id,
			Action:     "remove_file",
			Path:       path,
			Detail:     "failed parse/size sanity check",
		})
	}
	return actions, nil
}

// districtFileHealthy reports whether a district file parses as a record
// with an identifier.
func districtFileHealthy(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil || len(data) < 2 {
		return false
	}
	rec := &DistrictResult{}
	if err := json.Unmarshal(data, rec); err != nil {
		return false
	}
	return rec.DistrictID != ""
}

// rebuildManifest regenerates the manifest from the district files present
// on disk and rewrites it.
func (s *Store) rebuildManifest(id, dir string) (*Manifest, []RecoveryAction, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	manifest := &Manifest{
		SnapshotID:  id,
		GeneratedAt: time.Now().UTC(),
		Districts:   make(map[string]ManifestEntry),
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		districtID := districtIDFromFileName(e.Name())
		if districtID == "" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		status := StatusSuccess
		if !districtFileHealthy(path) {
			status = StatusFailed
		}
		manifest.Districts[districtID] = ManifestEntry{
			FileName:  e.Name(),
			Status:    status,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime().UTC(),
		}
	}
	if info, err := os.Stat(filepath.Join(dir, rankingsFileName)); err == nil {
		manifest.RankingsPresent = true
		manifest.RankingsSizeBytes = info.Size()
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := atomicWriteFile(filepath.Join(dir, manifestFileName), data); err != nil {
		return nil, nil, err
	}
	return manifest, []RecoveryAction{{
		SnapshotID: id,
		Action:     "rebuild_manifest",
		Detail:     fmt.Sprintf("%d district files indexed", len(manifest.Districts)),
	}}, nil
}

// writeMetadataFile rewrites a snapshot's metadata atomically.
func (s *Store) writeMetadataFile(dir string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return atomicWriteFile(filepath.Join(dir, metadataFileName), data)
}

// recoveryGuidance produces the operator-facing integrity verdict with
// ordered manual steps and an urgency tier.
func (s *Store) recoveryGuidance(ctx context.Context) (*RecoveryGuidance, error) {
	report, err := s.validateIntegrity(ctx)
	if err != nil {
		return nil, err
	}

	guidance := &RecoveryGuidance{Report: report}
	if report.Healthy {
		guidance.Urgency = UrgencyLow
		guidance.Steps = []string{"No action required; store is healthy."}
		return guidance, nil
	}

	var corruptMarkers, bookkeeping int
	for _, issue := range report.Issues {
		switch issue.Type {
		case IssueCorruptMetadata, IssueMissingMetadata, IssueCorruptManifest, IssueMissingDistrictFile:
			corruptMarkers++
		default:
			bookkeeping++
		}
	}

	switch {
	case corruptMarkers > 0 && len(report.AffectedSnapshots)*2 > report.SnapshotsChecked:
		guidance.Urgency = UrgencyCritical
	case corruptMarkers > 0:
		guidance.Urgency = UrgencyHigh
	default:
		guidance.Urgency = UrgencyMedium
	}

	guidance.Steps = append(guidance.Steps,
		fmt.Sprintf("Integrity validation found %d issue(s) across %d snapshot(s).",
			len(report.Issues), len(report.AffectedSnapshots)))
	guidance.Steps = append(guidance.Steps,
		"Run recovery with create_backups enabled to quarantine affected snapshots before mutation.")
	if bookkeeping > 0 {
		guidance.Steps = append(guidance.Steps,
			"Count mismatches and orphaned files are reconciled automatically by recovery.")
	}
	if corruptMarkers > 0 {
		guidance.Steps = append(guidance.Steps,
			"Snapshots with missing or corrupt commit markers require force_recovery, or re-ingestion of the affected dates from the raw extract cache.")
		guidance.Steps = append(guidance.Steps,
			"If the affected dates fall in a closing period, re-collection will supersede them naturally; prefer that over force_recovery.")
	}
	guidance.Steps = append(guidance.Steps,
		"Re-run integrity validation after recovery to confirm a healthy verdict.")
	return guidance, nil
}
