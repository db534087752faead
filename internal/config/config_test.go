// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := loadFrom("")
	if err != nil {
		t.Fatalf("loadFrom with defaults failed: %v", err)
	}
	if cfg.Server.Port != 8455 {
		t.Errorf("Expected default port 8455, got %d", cfg.Server.Port)
	}
	if cfg.Store.CurrentTTL != 5*time.Minute {
		t.Errorf("Expected default current TTL 5m, got %s", cfg.Store.CurrentTTL)
	}
	if cfg.Store.ListingTTL != 60*time.Second {
		t.Errorf("Expected default listing TTL 60s, got %s", cfg.Store.ListingTTL)
	}
}

func TestYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9001
store:
  root: /tmp/snapshots
  districts:
    - NORTH01
    - SOUTH02
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Expected port 9001, got %d", cfg.Server.Port)
	}
	if len(cfg.Store.Districts) != 2 || cfg.Store.Districts[0] != "NORTH01" {
		t.Errorf("Expected districts from file, got %v", cfg.Store.Districts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
	// Untouched values keep their defaults
	if cfg.Extract.SourceName != "district-portal" {
		t.Errorf("Expected default source name, got %s", cfg.Extract.SourceName)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DISTRIKT_SERVER_PORT", "9100")
	t.Setenv("DISTRIKT_STORE_DISTRICTS", "EAST03, WEST04")

	cfg, err := loadFrom("")
	if err != nil {
		t.Fatalf("loadFrom failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Expected env port 9100, got %d", cfg.Server.Port)
	}
	if len(cfg.Store.Districts) != 2 || cfg.Store.Districts[1] != "WEST04" {
		t.Errorf("Expected districts from env, got %v", cfg.Store.Districts)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DISTRIKT_SERVER_PORT", "server.port"},
		{"DISTRIKT_STORE_CURRENT_TTL", "store.current_ttl"},
		{"DISTRIKT_LOGGING_LEVEL", "logging.level"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty root", func(c *Config) { c.Store.Root = "" }},
		{"zero current ttl", func(c *Config) { c.Store.CurrentTTL = 0 }},
		{"zero listing ttl", func(c *Config) { c.Store.ListingTTL = 0 }},
		{"bad district id", func(c *Config) { c.Store.Districts = []string{"north/1"} }},
		{"zero rate", func(c *Config) { c.Extract.RatePerSecond = 0 }},
		{"zero sweep interval", func(c *Config) { c.Integrity.SweepInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}
