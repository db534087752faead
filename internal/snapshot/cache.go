// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"sync"
	"time"
)

// cacheEntry holds one cached value with its expiration.
type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// ttlCache is a small thread-safe TTL cache owned by a single store
// instance. State is deliberately per-store rather than process-global so
// two stores (or two tests) never share entries. The key population is tiny
// ("current", "listing", a handful of snapshot ids), so expired entries are
// reaped on access instead of by a background goroutine.
type ttlCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration

	// gen increments on every invalidation. A set whose caller observed an
	// older generation is dropped: a slow scan that started before a commit
	// must not reinstate pre-commit state after the writer invalidated.
	gen uint64

	hits      int64
	misses    int64
	evictions int64
}

// CacheStats reports cache performance counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// get returns the cached value for key if present and unexpired.
func (c *ttlCache) get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.record(&c.misses)
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.record(&c.misses)
		c.record(&c.evictions)
		return nil, false
	}

	c.record(&c.hits)
	return entry.data, true
}

// generation returns the current invalidation generation. Callers capture it
// before computing a value to store and pass it back to set.
func (c *ttlCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// set stores a value under key with the cache's TTL. gen must be the
// generation observed before the caller started computing value; the store
// is a no-op when an invalidation happened in between.
func (c *ttlCache) set(key string, value interface{}, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[key] = cacheEntry{
		data:      value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// delete removes a single key and invalidates in-flight populations.
func (c *ttlCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.entries, key)
}

// clear removes all entries and invalidates in-flight populations.
func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]cacheEntry)
}

// stats returns a point-in-time copy of the counters.
func (c *ttlCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Keys:      len(c.entries),
	}
}

func (c *ttlCache) record(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}
