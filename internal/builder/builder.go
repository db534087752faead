// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/distrikt/internal/extract"
	"github.com/tomtom215/distrikt/internal/logging"
	"github.com/tomtom215/distrikt/internal/snapshot"
)

// Normalizer turns one raw upstream extract into a district record.
type Normalizer interface {
	Normalize(districtID string, raw []byte) (*snapshot.DistrictResult, error)
}

// NormalizerFunc adapts a function to the Normalizer interface.
type NormalizerFunc func(districtID string, raw []byte) (*snapshot.DistrictResult, error)

func (f NormalizerFunc) Normalize(districtID string, raw []byte) (*snapshot.DistrictResult, error) {
	return f(districtID, raw)
}

// RankFunc derives the aggregate rankings artifact from the district records
// that succeeded. Optional; nil means no rankings artifact.
type RankFunc func(districts []snapshot.DistrictResult) (json.RawMessage, error)

// PassthroughNormalizer returns a Normalizer that stores the raw extract
// unchanged as the district's stats payload, rejecting payloads that are not
// valid JSON. Used when the portal already serves normalized records.
func PassthroughNormalizer() Normalizer {
	return NormalizerFunc(func(districtID string, raw []byte) (*snapshot.DistrictResult, error) {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("district %s extract is not valid JSON", districtID)
		}
		return &snapshot.DistrictResult{
			DistrictID: districtID,
			Stats:      json.RawMessage(raw),
		}, nil
	})
}

// Config configures a snapshot builder.
type Config struct {
	// Districts is the roster to collect, in collection order.
	Districts []string

	// Source names the upstream in snapshot metadata.
	Source string

	// RequestsPerSecond paces upstream fetches. Zero means unpaced.
	RequestsPerSecond float64

	// Burst is the pacer's burst allowance. Zero means 1.
	Burst int
}

// Builder runs one collection pass: fetch each district's extract, cache the
// raw bytes, normalize, and commit the assembled snapshot.
type Builder struct {
	cfg        config
	store      *snapshot.Store
	source     extract.Source
	cache      *extract.Cache
	normalizer Normalizer
	rank       RankFunc
	limiter    *rate.Limiter
	log        zerolog.Logger
}

type config struct {
	districts []string
	source    string
}

// New creates a builder. The extract cache and rank function are optional.
func New(cfg Config, store *snapshot.Store, source extract.Source, cache *extract.Cache, normalizer Normalizer, rank RankFunc) (*Builder, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("extract source is required")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if len(cfg.Districts) == 0 {
		return nil, fmt.Errorf("district roster is required")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Builder{
		cfg:        config{districts: cfg.Districts, source: cfg.Source},
		store:      store,
		source:     source,
		cache:      cache,
		normalizer: normalizer,
		rank:       rank,
		limiter:    limiter,
		log:        logging.WithComponent("snapshot-builder"),
	}, nil
}

// RunOptions adjusts one collection run.
type RunOptions struct {
	// LogicalDate is the calendar date the data represents (YYYY-MM-DD).
	LogicalDate string

	// CollectionDate is the date the data was collected. Empty means the
	// logical date. During a closing period the two differ: data for the
	// period tail is recollected on later days as it stabilizes.
	CollectionDate string

	// ClosingPeriod marks the run as closing-period recollection.
	ClosingPeriod bool

	// Force skips the stored-vs-incoming collection date comparison.
	Force bool
}

// RunResult reports one collection run.
type RunResult struct {
	RunID    string                  `json:"run_id"`
	Skipped  bool                    `json:"skipped"`
	Decision snapshot.UpdateDecision `json:"decision"`
	Metadata *snapshot.Metadata      `json:"metadata,omitempty"`
	Duration time.Duration           `json:"duration_ns"`
}

// Run executes one collection pass for opts.LogicalDate. When the store
// already holds newer data for that date the run is skipped and the decision
// is returned, unless opts.Force is set.
func (b *Builder) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := b.log.With().Str("run_id", runID).Str("logical_date", opts.LogicalDate).Logger()

	collectionDate := opts.CollectionDate
	if collectionDate == "" {
		collectionDate = opts.LogicalDate
	}

	result := &RunResult{RunID: runID}

	decision, err := b.store.ShouldUpdate(ctx, opts.LogicalDate, collectionDate)
	if err != nil {
		return nil, fmt.Errorf("update decision for %s: %w", opts.LogicalDate, err)
	}
	result.Decision = decision
	if !decision.ShouldUpdate && !opts.Force {
		log.Info().
			Str("reason", string(decision.Reason)).
			Str("existing_collection_date", decision.ExistingCollectionDate).
			Msg("Run skipped; stored data is newer")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result, nil
	}

	snap := &snapshot.Snapshot{
		ID:        collectionDate,
		CreatedAt: time.Now().UTC(),
		Status:    snapshot.StatusSuccess,
		Metadata: snapshot.SourceMetadata{
			Source:              b.cfg.source,
			AsOfDate:            opts.LogicalDate,
			IsClosingPeriodData: opts.ClosingPeriod,
			CollectionDate:      collectionDate,
			LogicalDate:         opts.LogicalDate,
		},
	}

	for _, districtID := range b.cfg.districts {
		rec := b.collectDistrict(ctx, log, districtID, collectionDate)
		snap.Districts = append(snap.Districts, *rec)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var rankings json.RawMessage
	if b.rank != nil {
		succeeded := make([]snapshot.DistrictResult, 0, len(snap.Districts))
		for _, d := range snap.Districts {
			if d.Status == snapshot.StatusSuccess {
				succeeded = append(succeeded, d)
			}
		}
		rankings, err = b.rank(succeeded)
		if err != nil {
			log.Error().Err(err).Msg("Ranking computation failed")
			snap.Errors = append(snap.Errors, fmt.Sprintf("ranking computation failed: %v", err))
			rankings = nil
		}
	}

	// Closing-period remap: data collected on a later date is stored under
	// the logical date it represents.
	var writeOpts *snapshot.WriteOptions
	if collectionDate != opts.LogicalDate {
		writeOpts = &snapshot.WriteOptions{OverrideDate: opts.LogicalDate}
	}

	meta, err := b.store.WriteSnapshot(ctx, snap, rankings, writeOpts)
	if err != nil {
		return nil, fmt.Errorf("commit snapshot %s: %w", opts.LogicalDate, err)
	}
	result.Metadata = meta
	result.Duration = time.Since(start)

	log.Info().
		Str("status", string(meta.Status)).
		Int("districts", meta.DistrictCount).
		Int("failed", meta.FailedCount).
		Dur("duration", result.Duration).
		Msg("Collection run committed")
	return result, nil
}

// collectDistrict fetches, caches, and normalizes one district. Any failure
// yields a failed record; it never aborts the run.
func (b *Builder) collectDistrict(ctx context.Context, log zerolog.Logger, districtID, collectionDate string) *snapshot.DistrictResult {
	failed := func(stage string, err error) *snapshot.DistrictResult {
		log.Warn().Err(err).Str("district_id", districtID).Str("stage", stage).Msg("District collection failed")
		return &snapshot.DistrictResult{
			DistrictID:  districtID,
			CollectedAt: time.Now().UTC(),
			Status:      snapshot.StatusFailed,
			Error:       fmt.Sprintf("%s: %v", stage, err),
		}
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return failed("pacing", err)
	}

	raw, err := b.source.Fetch(ctx, districtID, collectionDate)
	if err != nil {
		return failed("fetch", err)
	}

	if b.cache != nil {
		key := fmt.Sprintf("%s_%s.json", districtID, collectionDate)
		if err := b.cache.Put(key, raw); err != nil {
			// The snapshot is the product; the raw extract is provenance.
			// Losing it degrades recovery options but not the run.
			log.Error().Err(err).Str("district_id", districtID).Msg("Failed to cache raw extract")
		}
	}

	rec, err := b.normalizer.Normalize(districtID, raw)
	if err != nil {
		return failed("normalize", err)
	}
	if rec.DistrictID == "" {
		rec.DistrictID = districtID
	}
	if rec.CollectedAt.IsZero() {
		rec.CollectedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = snapshot.StatusSuccess
	}
	return rec
}
