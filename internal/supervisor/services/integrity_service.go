// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/distrikt/internal/logging"
	"github.com/tomtom215/distrikt/internal/snapshot"
)

// IntegrityOptions configures the periodic integrity sweep.
type IntegrityOptions struct {
	// Interval between sweeps. Default: 6h.
	Interval time.Duration

	// AutoRecover applies automated recovery when a sweep finds issues.
	AutoRecover bool

	// CreateBackups quarantines affected snapshots before auto-recovery
	// mutates them. Ignored unless AutoRecover is set.
	CreateBackups bool
}

// IntegrityService periodically validates the snapshot store and, when
// configured, applies automated recovery. Sweep failures are logged and the
// service keeps its schedule; a failing store should not crash-loop the
// supervisor.
type IntegrityService struct {
	store *snapshot.Store
	opts  IntegrityOptions
	log   zerolog.Logger

	// sweepDone receives a signal after each sweep; nil outside tests.
	sweepDone chan struct{}
}

// NewIntegrityService creates the periodic sweep service.
func NewIntegrityService(store *snapshot.Store, opts IntegrityOptions) *IntegrityService {
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Hour
	}
	return &IntegrityService{
		store: store,
		opts:  opts,
		log:   logging.WithComponent("integrity-sweep"),
	}
}

// Serve implements suture.Service: one sweep immediately, then on a ticker
// until the context ends.
func (s *IntegrityService) Serve(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *IntegrityService) sweep(ctx context.Context) {
	defer func() {
		if s.sweepDone != nil {
			select {
			case s.sweepDone <- struct{}{}:
			default:
			}
		}
	}()

	report, err := s.store.ValidateIntegrity(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Integrity sweep failed")
		return
	}
	if report.Healthy {
		s.log.Debug().Int("snapshots", report.SnapshotsChecked).Msg("Integrity sweep healthy")
		return
	}

	s.log.Warn().
		Int("issues", len(report.Issues)).
		Strs("affected", report.AffectedSnapshots).
		Msg("Integrity sweep found issues")

	if !s.opts.AutoRecover {
		return
	}
	result, err := s.store.RecoverFromCorruption(ctx, snapshot.RecoveryOptions{
		CreateBackups: s.opts.CreateBackups,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Automated recovery failed")
		return
	}
	s.log.Info().
		Int("recovered", len(result.Recovered)).
		Int("unresolved", len(result.Unresolved)).
		Msg("Automated recovery applied")
}

// String identifies the service in supervisor logs.
func (s *IntegrityService) String() string {
	return "integrity-sweep"
}
