// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package config

import (
	"time"
)

// Config is the root application configuration.
//
// Values are layered: struct defaults, then an optional YAML file, then
// DISTRIKT_-prefixed environment variables (highest priority).
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Extract   ExtractConfig   `koanf:"extract"`
	Integrity IntegrityConfig `koanf:"integrity"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// AdminJWTSecret signs and verifies bearer tokens for mutating and
	// recovery endpoints. Mutating endpoints are disabled when empty.
	AdminJWTSecret string `koanf:"admin_jwt_secret"`
}

// StoreConfig holds snapshot store settings.
type StoreConfig struct {
	// Root is the store directory; one subdirectory per snapshot date.
	Root string `koanf:"root"`

	// CurrentTTL bounds staleness of the cached "current" snapshot.
	CurrentTTL time.Duration `koanf:"current_ttl"`

	// ListingTTL bounds staleness of the cached snapshot listing.
	ListingTTL time.Duration `koanf:"listing_ttl"`

	// Districts is the configured member-district roster. A snapshot is
	// "success" only when every listed district persisted; with an empty
	// roster the input set itself is the expectation.
	Districts []string `koanf:"districts"`
}

// ExtractConfig holds raw extract cache and collection settings.
type ExtractConfig struct {
	CacheRoot string `koanf:"cache_root"`

	// PortalURL is the upstream district portal base URL. Ingestion runs are
	// disabled when empty; the store still serves whatever is on disk.
	PortalURL string `koanf:"portal_url"`

	// PortalAPIKey authenticates requests to the portal. Optional.
	PortalAPIKey string `koanf:"portal_api_key"`

	// SourceName identifies the upstream system in snapshot metadata.
	SourceName string `koanf:"source_name"`

	// RatePerSecond / Burst pace collection against the upstream source.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// IntegrityConfig holds the periodic integrity sweep settings.
type IntegrityConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// AutoRecover applies automated recovery when a sweep finds issues.
	AutoRecover bool `koanf:"auto_recover"`

	// CreateBackups quarantines a copy of each affected snapshot before
	// automated recovery mutates it.
	CreateBackups bool `koanf:"create_backups"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8455,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			AdminJWTSecret:  "",
		},
		Store: StoreConfig{
			Root:       "/data/snapshots",
			CurrentTTL: 5 * time.Minute,
			ListingTTL: 60 * time.Second,
			Districts:  []string{},
		},
		Extract: ExtractConfig{
			CacheRoot:     "/data/extracts",
			PortalURL:     "",
			PortalAPIKey:  "",
			SourceName:    "district-portal",
			RatePerSecond: 2,
			Burst:         1,
		},
		Integrity: IntegrityConfig{
			SweepInterval: 6 * time.Hour,
			AutoRecover:   false,
			CreateBackups: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
