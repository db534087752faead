// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"sync/atomic"
	"time"
)

// PerformanceMetrics is a point-in-time view of the store's read counters.
type PerformanceMetrics struct {
	TotalReads         int64         `json:"total_reads"`
	CacheHits          int64         `json:"cache_hits"`
	CacheMisses        int64         `json:"cache_misses"`
	AverageReadLatency time.Duration `json:"average_read_latency_ns"`
	ConcurrentReads    int64         `json:"concurrent_reads"`
	MaxConcurrentReads int64         `json:"max_concurrent_reads"`
}

// perfCounters tracks read-path performance per store instance.
type perfCounters struct {
	totalReads     atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	totalReadNanos atomic.Int64
	concurrent     atomic.Int64
	maxConcurrent  atomic.Int64
}

// beginRead marks a read as started and returns a completion func that
// records its latency.
func (p *perfCounters) beginRead() func() {
	start := time.Now()
	cur := p.concurrent.Add(1)
	for {
		max := p.maxConcurrent.Load()
		if cur <= max || p.maxConcurrent.CompareAndSwap(max, cur) {
			break
		}
	}
	return func() {
		p.concurrent.Add(-1)
		p.totalReads.Add(1)
		p.totalReadNanos.Add(time.Since(start).Nanoseconds())
	}
}

func (p *perfCounters) hit()  { p.cacheHits.Add(1) }
func (p *perfCounters) miss() { p.cacheMisses.Add(1) }

// snapshot returns the current counter values.
func (p *perfCounters) snapshot() PerformanceMetrics {
	total := p.totalReads.Load()
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(p.totalReadNanos.Load() / total)
	}
	return PerformanceMetrics{
		TotalReads:         total,
		CacheHits:          p.cacheHits.Load(),
		CacheMisses:        p.cacheMisses.Load(),
		AverageReadLatency: avg,
		ConcurrentReads:    p.concurrent.Load(),
		MaxConcurrentReads: p.maxConcurrent.Load(),
	}
}

// reset zeroes every counter.
func (p *perfCounters) reset() {
	p.totalReads.Store(0)
	p.cacheHits.Store(0)
	p.cacheMisses.Store(0)
	p.totalReadNanos.Store(0)
	p.maxConcurrent.Store(p.concurrent.Load())
}
