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
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/distrikt/internal/metrics"
)

// writer persists snapshots as a directory of files with a fixed write
// order: district records, rankings, manifest, then metadata. The metadata
// file is the commit point — a reader that gates on it can never observe a
// half-written snapshot, and the total write order is the store's sole
// consistency mechanism. Metadata and manifest go through temp-file plus
// atomic rename so a crash mid-write cannot leave a truncated commit marker.
type writer struct {
	guard *pathGuard
	log   zerolog.Logger

	// expected is the configured district roster used for status
	// derivation. Empty means the input set itself is the expectation.
	expected []string
}

// atomicWriteFile writes data to path via a temp file in the same directory
// followed by rename, so readers see either the old content or the new,
// never a partial write.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}

// writeSnapshot persists a snapshot following the commit protocol and
// returns the resulting metadata. One district's failure never aborts the
// others; it is recorded in the manifest and the snapshot becomes partial.
func (w *writer) writeSnapshot(ctx context.Context, snap *Snapshot, rankings json.RawMessage, opts *WriteOptions) (*Metadata, error) {
	id := snap.ID
	if opts != nil && opts.OverrideDate != "" {
		id = opts.OverrideDate
	}
	if err := w.guard.validateSnapshotID(id); err != nil {
		return nil, err
	}

	dir, err := w.guard.writePath(id)
	if err != nil {
		return nil, err
	}
	// Idempotent: the directory may exist from a prior partial write.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}

	now := time.Now().UTC()
	manifest := &Manifest{
		SnapshotID:  id,
		GeneratedAt: now,
		Districts:   make(map[string]ManifestEntry, len(snap.Districts)),
	}
	var districtErrors []DistrictError

	for i := range snap.Districts {
		rec := &snap.Districts[i]
		entry, derr := w.writeDistrictFile(dir, id, rec)
		manifest.Districts[rec.DistrictID] = entry
		if derr != nil {
			districtErrors = append(districtErrors, *derr)
			metrics.SnapshotDistrictWriteFailures.Inc()
		}
	}

	if len(rankings) > 0 {
		size, err := w.writeRankingsFile(dir, rankings)
		if err != nil {
			// The aggregate artifact is optional; its loss does not void
			// the district data, but it must be recorded.
			w.log.Error().Err(err).Str("snapshot_id", id).Msg("Failed to write rankings artifact")
			snap.Errors = append(snap.Errors, fmt.Sprintf("rankings write failed: %v", err))
		} else {
			manifest.RankingsPresent = true
			manifest.RankingsSizeBytes = size
		}
	}

	// Overwrite semantics: a rewrite replaces the directory's whole
	// contents. Files from an earlier, larger write must not outlive the
	// new commit, or they stay readable and contradict the manifest.
	if err := w.pruneStaleFiles(dir, id, manifest); err != nil {
		return nil, err
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(dir, manifestFileName)
	if err := atomicWriteFile(manifestPath, manifestData); err != nil {
		return nil, fmt.Errorf("write manifest for %s: %w", id, err)
	}

	meta := w.buildMetadata(id, snap, manifest, districtErrors, now)
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	// Commit point. Until this rename completes the snapshot does not
	// exist as far as discovery is concerned.
	metaPath := filepath.Join(dir, metadataFileName)
	if err := atomicWriteFile(metaPath, metaData); err != nil {
		return nil, fmt.Errorf("write metadata for %s: %w", id, err)
	}

	metrics.SnapshotWrites.WithLabelValues(string(meta.Status)).Inc()
	w.log.Info().
		Str("snapshot_id", id).
		Str("status", string(meta.Status)).
		Int("districts", meta.DistrictCount).
		Int("failed", meta.FailedCount).
		Msg("Snapshot committed")

	return meta, nil
}

// pruneStaleFiles removes district and rankings files from a previous write
// of the same snapshot that the incoming manifest does not claim as present.
// A district whose entry is failed has no payload in this write, so any older
// payload for it goes too.
func (w *writer) pruneStaleFiles(dir, snapshotID string, manifest *Manifest) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list snapshot directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stale := false
		if districtID := districtIDFromFileName(name); districtID != "" {
			entry, ok := manifest.Districts[districtID]
			stale = !ok || entry.Status != StatusSuccess
		} else if name == rankingsFileName {
			stale = !manifest.RankingsPresent
		}
		if !stale {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove stale file %s for %s: %w", name, snapshotID, err)
		}
		w.log.Debug().
			Str("snapshot_id", snapshotID).
			Str("file", name).
			Msg("Removed file left over from a previous write")
	}
	return nil
}

// writeDistrictFile persists one district record and returns its manifest
// entry. Failures produce a failed entry plus a DistrictError; they never
// propagate as a write error.
func (w *writer) writeDistrictFile(dir, snapshotID string, rec *DistrictResult) (ManifestEntry, *DistrictError) {
	fail := func(op string, err error) (ManifestEntry, *DistrictError) {
		w.log.Warn().Err(err).
			Str("snapshot_id", snapshotID).
			Str("district_id", rec.DistrictID).
			Msg("District record write failed")
		return ManifestEntry{
				FileName: districtFileName(rec.DistrictID),
				Status:   StatusFailed,
				Error:    err.Error(),
			}, &DistrictError{
				DistrictID: rec.DistrictID,
				Operation:  op,
				Message:    err.Error(),
				Timestamp:  time.Now().UTC(),
				Retryable:  op != "validate",
			}
	}

	if err := w.guard.validateDistrictID(rec.DistrictID); err != nil {
		return fail("validate", err)
	}

	// A record that arrives already failed is persisted as bookkeeping
	// only; there is no payload file to write.
	if rec.Status == StatusFailed {
		return ManifestEntry{
			FileName: districtFileName(rec.DistrictID),
			Status:   StatusFailed,
			Error:    rec.Error,
		}, nil
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fail("serialize", err)
	}

	name := districtFileName(rec.DistrictID)
	path := filepath.Join(dir, name)
	if err := atomicWriteFile(path, data); err != nil {
		return fail("write", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail("stat", err)
	}
	return ManifestEntry{
		FileName:  name,
		Status:    StatusSuccess,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime().UTC(),
	}, nil
}

// writeRankingsFile persists the aggregate rankings artifact and returns its size.
func (w *writer) writeRankingsFile(dir string, rankings json.RawMessage) (int64, error) {
	if !json.Valid(rankings) {
		return 0, fmt.Errorf("rankings payload is not valid JSON")
	}
	path := filepath.Join(dir, rankingsFileName)
	if err := atomicWriteFile(path, rankings); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// buildMetadata derives the commit-marker content from the write outcome.
func (w *writer) buildMetadata(id string, snap *Snapshot, manifest *Manifest, districtErrors []DistrictError, now time.Time) *Metadata {
	successCount := manifest.SuccessCount()
	failedCount := manifest.FailedCount()

	status := deriveStatus(snap.Status, successCount, failedCount, len(snap.Districts), w.expected)

	meta := &Metadata{
		SnapshotID:          id,
		CreatedAt:           now,
		SchemaVersion:       snap.SchemaVersion,
		CalculationVersion:  snap.CalculationVersion,
		RankingVersion:      snap.RankingVersion,
		Status:              status,
		DistrictCount:       len(manifest.Districts),
		SuccessCount:        successCount,
		FailedCount:         failedCount,
		Errors:              snap.Errors,
		DistrictErrors:      append(append([]DistrictError{}, snap.DistrictErrors...), districtErrors...),
		Source:              snap.Metadata.Source,
		AsOfDate:            snap.Metadata.AsOfDate,
		IsClosingPeriodData: snap.Metadata.IsClosingPeriodData,
		CollectionDate:      snap.Metadata.CollectionDate,
		LogicalDate:         snap.Metadata.LogicalDate,
	}
	for _, derr := range districtErrors {
		meta.Errors = append(meta.Errors, fmt.Sprintf("district %s: %s failed: %s", derr.DistrictID, derr.Operation, derr.Message))
	}
	if len(meta.DistrictErrors) == 0 {
		meta.DistrictErrors = nil
	}
	return meta
}

// deriveStatus computes the overall snapshot status. Upstream rejection
// (failed input) is preserved; otherwise success requires every district
// write to succeed and, when a roster is configured, every rostered
// district to be present.
func deriveStatus(inputStatus Status, successCount, failedCount, inputCount int, expected []string) Status {
	if inputStatus == StatusFailed {
		return StatusFailed
	}
	if failedCount > 0 {
		return StatusPartial
	}
	if len(expected) > 0 && inputCount < len(expected) {
		return StatusPartial
	}
	if successCount == inputCount && inputCount > 0 {
		return StatusSuccess
	}
	if inputCount == 0 {
		return StatusFailed
	}
	return StatusPartial
}

// writeDistrictRecord persists a single district record into a snapshot
// directory. Intended for callers that stream districts in as data becomes
// available; the snapshot stays invisible to discovery until a full
// writeSnapshot commits its metadata.
func (w *writer) writeDistrictRecord(ctx context.Context, snapshotID string, rec *DistrictResult) error {
	if err := w.guard.validateSnapshotID(snapshotID); err != nil {
		return err
	}
	if err := w.guard.validateDistrictID(rec.DistrictID); err != nil {
		return err
	}
	dir, err := w.guard.writePath(snapshotID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize district %s: %w", rec.DistrictID, err)
	}
	return atomicWriteFile(filepath.Join(dir, districtFileName(rec.DistrictID)), data)
}

// writeRankings persists the rankings artifact for a snapshot on its own.
func (w *writer) writeRankings(ctx context.Context, snapshotID string, rankings json.RawMessage) error {
	if err := w.guard.validateSnapshotID(snapshotID); err != nil {
		return err
	}
	dir, err := w.guard.writePath(snapshotID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}
	_, err = w.writeRankingsFile(dir, rankings)
	return err
}

// deleteSnapshot removes a snapshot directory recursively. Deleting a
// snapshot that does not exist is not an error.
func (w *writer) deleteSnapshot(ctx context.Context, id string) error {
	if err := w.guard.validateSnapshotID(id); err != nil {
		return err
	}
	dir, err := w.guard.writePath(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	metrics.SnapshotDeletes.Inc()
	w.log.Info().Str("snapshot_id", id).Msg("Snapshot deleted")
	return nil
}
