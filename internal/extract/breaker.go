// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package extract

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/distrikt/internal/logging"
	"github.com/tomtom215/distrikt/internal/metrics"
)

// Source fetches one raw extract from the upstream district portal.
type Source interface {
	// Fetch returns the raw extract for one district on one date.
	Fetch(ctx context.Context, districtID, date string) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, districtID, date string) ([]byte, error)

func (f SourceFunc) Fetch(ctx context.Context, districtID, date string) ([]byte, error) {
	return f(ctx, districtID, date)
}

// BreakerSource wraps a Source with a circuit breaker so a misbehaving
// upstream sheds load instead of stalling every district in the run. The
// breaker trips once at least 10 requests in the rolling interval have a
// failure ratio of 60% or more, stays open for two minutes, then admits up
// to three probes half-open.
type BreakerSource struct {
	name    string
	breaker *gobreaker.CircuitBreaker[[]byte]
	source  Source
}

// NewBreakerSource wraps source with a named circuit breaker.
func NewBreakerSource(name string, source Source) *BreakerSource {
	log := logging.WithComponent("extract-breaker")
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(gobreaker.StateClosed))
	return &BreakerSource{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		source:  source,
	}
}

// Fetch runs the upstream fetch through the breaker. Rejections while the
// breaker is open surface as gobreaker.ErrOpenState.
func (b *BreakerSource) Fetch(ctx context.Context, districtID, date string) ([]byte, error) {
	data, err := b.breaker.Execute(func() ([]byte, error) {
		return b.source.Fetch(ctx, districtID, date)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return data, err
}

// State returns the breaker's current state.
func (b *BreakerSource) State() gobreaker.State {
	return b.breaker.State()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
