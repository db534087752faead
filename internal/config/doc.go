// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package config loads and validates application configuration using koanf.
//
// Configuration is layered in priority order:
//
//  1. Struct defaults (defaultConfig)
//  2. YAML config file (config.yaml, or DISTRIKT_CONFIG path)
//  3. DISTRIKT_-prefixed environment variables
//
// Example:
//
//	DISTRIKT_SERVER_PORT=9000 DISTRIKT_STORE_ROOT=/var/lib/distrikt ./distrikt
package config
