// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package config

import (
	"fmt"
	"regexp"
)

// districtIDPattern matches valid district identifiers in configuration.
// Must agree with the snapshot store's path guard.
var districtIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Validate checks the configuration for internally consistent, usable values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Store.Root == "" {
		return fmt.Errorf("store.root is required")
	}
	if c.Store.CurrentTTL <= 0 {
		return fmt.Errorf("store.current_ttl must be positive, got %s", c.Store.CurrentTTL)
	}
	if c.Store.ListingTTL <= 0 {
		return fmt.Errorf("store.listing_ttl must be positive, got %s", c.Store.ListingTTL)
	}
	for _, d := range c.Store.Districts {
		if !districtIDPattern.MatchString(d) {
			return fmt.Errorf("store.districts contains invalid district id %q", d)
		}
	}

	if c.Extract.CacheRoot == "" {
		return fmt.Errorf("extract.cache_root is required")
	}
	if c.Extract.RatePerSecond <= 0 {
		return fmt.Errorf("extract.rate_per_second must be positive, got %v", c.Extract.RatePerSecond)
	}
	if c.Extract.Burst < 1 {
		return fmt.Errorf("extract.burst must be at least 1, got %d", c.Extract.Burst)
	}

	if c.Integrity.SweepInterval <= 0 {
		return fmt.Errorf("integrity.sweep_interval must be positive, got %s", c.Integrity.SweepInterval)
	}

	return nil
}
