// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/distrikt/internal/logging"
	"github.com/tomtom215/distrikt/internal/metrics"
)

// Default cache TTLs. The current snapshot changes at most a few times a day,
// so a few minutes of staleness is acceptable; the listing is cheaper to
// rebuild and refreshes faster.
const (
	DefaultCurrentTTL = 5 * time.Minute
	DefaultListingTTL = 60 * time.Second
)

// Config configures a snapshot store instance.
type Config struct {
	// Root is the directory that holds one subdirectory per snapshot date.
	// Created if it does not exist.
	Root string

	// ExpectedDistricts is the configured district roster. When set, a
	// snapshot missing rostered districts is at best partial.
	ExpectedDistricts []string

	// CurrentTTL bounds staleness of the current-snapshot cache.
	// Zero means DefaultCurrentTTL.
	CurrentTTL time.Duration

	// ListingTTL bounds staleness of the listing cache.
	// Zero means DefaultListingTTL.
	ListingTTL time.Duration
}

// Store is the façade over the snapshot engine: cached reads, committed
// writes, closing-period update decisions, and integrity tooling. All methods
// are safe for concurrent use. The store assumes it is the only writer to its
// root directory; concurrent processes writing the same root are not
// coordinated.
type Store struct {
	cfg    Config
	guard  *pathGuard
	reader *reader
	writer *writer
	perf   *perfCounters
	log    zerolog.Logger
}

// New opens a store at cfg.Root, creating the directory if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", cfg.Root, err)
	}
	guard, err := newPathGuard(cfg.Root)
	if err != nil {
		return nil, err
	}

	if cfg.CurrentTTL <= 0 {
		cfg.CurrentTTL = DefaultCurrentTTL
	}
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = DefaultListingTTL
	}

	log := logging.WithComponent("snapshot-store")
	perf := &perfCounters{}
	s := &Store{
		cfg:   cfg,
		guard: guard,
		perf:  perf,
		log:   log,
		reader: &reader{
			guard:   guard,
			log:     log,
			current: newTTLCache(cfg.CurrentTTL),
			listing: newTTLCache(cfg.ListingTTL),
			perf:    perf,
		},
		writer: &writer{
			guard:    guard,
			log:      log,
			expected: cfg.ExpectedDistricts,
		},
	}
	return s, nil
}

// Root returns the store's resolved root directory.
func (s *Store) Root() string { return s.guard.root }

// instrument wraps a read for both the per-store counters and the
// process-wide Prometheus series.
func (s *Store) instrument(operation string, err *error) func() {
	done := s.perf.beginRead()
	start := time.Now()
	return func() {
		done()
		outcome := "success"
		if *err != nil {
			outcome = "error"
		}
		metrics.RecordRead(operation, outcome, time.Since(start))
	}
}

// GetCurrentSnapshot returns the newest successful snapshot, or nil when the
// store holds none.
func (s *Store) GetCurrentSnapshot(ctx context.Context) (snap *Snapshot, err error) {
	defer s.instrument("current", &err)()
	return s.reader.latestSuccessful(ctx)
}

// GetSnapshot returns the snapshot for one date, or nil when it does not exist.
func (s *Store) GetSnapshot(ctx context.Context, id string) (snap *Snapshot, err error) {
	defer s.instrument("snapshot", &err)()
	return s.reader.snapshotByID(ctx, id)
}

// GetMetadata returns one snapshot's commit metadata, or nil when absent.
func (s *Store) GetMetadata(ctx context.Context, id string) (meta *Metadata, err error) {
	defer s.instrument("metadata", &err)()
	return s.reader.metadata(id)
}

// GetMetadataBatch fetches metadata for several snapshot ids. Ids that do not
// exist are simply absent from the result.
func (s *Store) GetMetadataBatch(ctx context.Context, ids []string) (out map[string]*Metadata, err error) {
	defer s.instrument("metadata_batch", &err)()
	return s.reader.metadataBatch(ctx, ids)
}

// GetManifest returns one snapshot's manifest, or nil when absent.
func (s *Store) GetManifest(ctx context.Context, id string) (m *Manifest, err error) {
	defer s.instrument("manifest", &err)()
	return s.reader.manifest(id)
}

// GetDistrictRecord returns one district's record from a snapshot, or nil
// when either does not exist.
func (s *Store) GetDistrictRecord(ctx context.Context, id, districtID string) (rec *DistrictResult, err error) {
	defer s.instrument("district", &err)()
	return s.reader.districtRecord(id, districtID)
}

// GetRankings returns the snapshot's aggregate rankings artifact, or nil when
// it was not written.
func (s *Store) GetRankings(ctx context.Context, id string) (data json.RawMessage, err error) {
	defer s.instrument("rankings", &err)()
	return s.reader.rankings(id)
}

// HasRankings reports whether the snapshot carries a rankings artifact.
func (s *Store) HasRankings(ctx context.Context, id string) (ok bool, err error) {
	defer s.instrument("rankings", &err)()
	return s.reader.hasRankings(id)
}

// ListSnapshots returns commit metadata for visible snapshots, newest first,
// filtered by opts.
func (s *Store) ListSnapshots(ctx context.Context, opts ListOptions) (out []Metadata, err error) {
	defer s.instrument("listing", &err)()
	return s.reader.list(ctx, opts)
}

// ListSnapshotIDs returns visible snapshot ids, newest first.
func (s *Store) ListSnapshotIDs(ctx context.Context) (ids []string, err error) {
	defer s.instrument("listing", &err)()
	return s.reader.listIDs(ctx)
}

// WriteSnapshot persists a snapshot under the commit protocol and invalidates
// the read caches it affects.
func (s *Store) WriteSnapshot(ctx context.Context, snap *Snapshot, rankings json.RawMessage, opts *WriteOptions) (*Metadata, error) {
	meta, err := s.writer.writeSnapshot(ctx, snap, rankings, opts)
	if err != nil {
		return nil, err
	}
	s.invalidateAfterWrite(meta.SnapshotID, meta.Status == StatusSuccess)
	return meta, nil
}

// WriteDistrictRecord persists one district record into a snapshot directory
// without committing the snapshot. Discovery ignores the directory until a
// WriteSnapshot commits its metadata.
func (s *Store) WriteDistrictRecord(ctx context.Context, id string, rec *DistrictResult) error {
	return s.writer.writeDistrictRecord(ctx, id, rec)
}

// WriteRankings persists the rankings artifact for a snapshot on its own.
func (s *Store) WriteRankings(ctx context.Context, id string, rankings json.RawMessage) error {
	return s.writer.writeRankings(ctx, id, rankings)
}

// DeleteSnapshot removes a snapshot and invalidates the caches. Deleting a
// snapshot that does not exist is not an error.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.writer.deleteSnapshot(ctx, id); err != nil {
		return err
	}
	s.invalidateAfterWrite(id, true)
	return nil
}

// invalidateAfterWrite drops cache entries a mutation may have made stale.
// The listing always changes; the cached current snapshot only needs to go
// when the mutation could have produced (or removed) a successful snapshot.
func (s *Store) invalidateAfterWrite(id string, affectsCurrent bool) {
	s.reader.listing.clear()
	s.reader.current.delete(cacheKeyPrefix + id)
	if affectsCurrent {
		s.reader.current.delete(cacheKeyCurrent)
	}
}

// InvalidateCaches drops every cached read result. The next reads go to disk.
func (s *Store) InvalidateCaches() {
	s.reader.current.clear()
	s.reader.listing.clear()
}

// ShouldUpdate decides whether an incoming collection for an existing
// snapshot date should overwrite what is stored. Unreadable or missing
// existing metadata fails open toward accepting the new data.
func (s *Store) ShouldUpdate(ctx context.Context, id, newCollectionDate string) (UpdateDecision, error) {
	if err := s.guard.validateSnapshotID(id); err != nil {
		return UpdateDecision{}, err
	}
	meta, err := s.reader.metadata(id)
	if err != nil || meta == nil {
		if err != nil {
			s.log.Warn().Err(err).Str("snapshot_id", id).
				Msg("Existing metadata unreadable; update decision fails open")
		}
		return UpdateDecision{ShouldUpdate: true, Reason: ReasonNoExisting}, nil
	}
	return decideUpdate(collectionDateOf(meta), newCollectionDate), nil
}

// ValidateIntegrity runs a full read-only integrity sweep.
func (s *Store) ValidateIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report, err := s.validateIntegrity(ctx)
	if err != nil {
		metrics.IntegritySweeps.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.IntegrityIssues.Set(float64(len(report.Issues)))
	verdict := "healthy"
	if !report.Healthy {
		verdict = "unhealthy"
		s.log.Warn().
			Int("issues", len(report.Issues)).
			Strs("affected", report.AffectedSnapshots).
			Msg("Integrity validation found issues")
	}
	metrics.IntegritySweeps.WithLabelValues(verdict).Inc()
	return report, nil
}

// RecoverFromCorruption runs integrity validation and applies corrective
// actions per opts, then invalidates the caches.
func (s *Store) RecoverFromCorruption(ctx context.Context, opts RecoveryOptions) (*RecoveryResult, error) {
	result, err := s.recoverFromCorruption(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(result.Actions) > 0 {
		s.InvalidateCaches()
		s.log.Info().
			Int("actions", len(result.Actions)).
			Int("recovered", len(result.Recovered)).
			Int("unresolved", len(result.Unresolved)).
			Msg("Recovery completed")
	}
	return result, nil
}

// RecoveryGuidance returns the operator-facing health verdict with manual
// steps and an urgency tier.
func (s *Store) RecoveryGuidance(ctx context.Context) (*RecoveryGuidance, error) {
	return s.recoveryGuidance(ctx)
}

// PerformanceMetrics returns the store's read-path counters.
func (s *Store) PerformanceMetrics() PerformanceMetrics {
	return s.perf.snapshot()
}

// ResetPerformanceMetrics zeroes the read-path counters.
func (s *Store) ResetPerformanceMetrics() {
	s.perf.reset()
}

// CacheStats returns counters for the current and listing caches.
func (s *Store) CacheStats() (current, listing CacheStats) {
	return s.reader.current.stats(), s.reader.listing.stats()
}
