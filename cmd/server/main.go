// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

// Package main is the entry point for the Distrikt server.
//
// Distrikt stores daily district performance snapshots on the local
// filesystem (one directory per date, metadata.json as commit marker) and
// serves them over a REST API with TTL caching and request collapsing.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file, DISTRIKT_ env vars (Koanf v2)
//  2. Snapshot store: directory-per-date engine with caches and path guard
//  3. Extract cache: checksum-verified raw extract storage
//  4. Builder (optional): portal collection runs, enabled by DISTRIKT_EXTRACT_PORTAL_URL
//  5. HTTP server: chi router with public reads and JWT-gated admin routes
//  6. Supervisor tree: suture-managed HTTP server and integrity sweep
//
// # Configuration
//
// Common settings (see internal/config for the full set):
//   - DISTRIKT_STORE_ROOT: snapshot directory (default /data/snapshots)
//   - DISTRIKT_STORE_DISTRICTS: comma-separated member district roster
//   - DISTRIKT_SERVER_ADMIN_JWT_SECRET: enables mutating/admin endpoints
//   - DISTRIKT_EXTRACT_PORTAL_URL: upstream portal; enables ingestion runs
//   - DISTRIKT_INTEGRITY_AUTO_RECOVER: apply automated recovery on sweep findings
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting connections, waits for in-flight requests up to the shutdown
// timeout, then stops the supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/distrikt/internal/api"
	"github.com/tomtom215/distrikt/internal/builder"
	"github.com/tomtom215/distrikt/internal/config"
	"github.com/tomtom215/distrikt/internal/extract"
	"github.com/tomtom215/distrikt/internal/logging"
	"github.com/tomtom215/distrikt/internal/snapshot"
	"github.com/tomtom215/distrikt/internal/supervisor"
	"github.com/tomtom215/distrikt/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_root", cfg.Store.Root).
		Int("districts", len(cfg.Store.Districts)).
		Bool("admin_enabled", cfg.Server.AdminJWTSecret != "").
		Msg("Starting Distrikt")

	store, err := snapshot.New(snapshot.Config{
		Root:              cfg.Store.Root,
		ExpectedDistricts: cfg.Store.Districts,
		CurrentTTL:        cfg.Store.CurrentTTL,
		ListingTTL:        cfg.Store.ListingTTL,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open snapshot store")
	}
	logging.Info().Str("root", store.Root()).Msg("Snapshot store opened")

	if cfg.Server.AdminJWTSecret == "" {
		logging.Warn().Msg("Admin JWT secret not configured; mutating and recovery endpoints are disabled")
	}

	extractCache, err := extract.NewCache(cfg.Extract.CacheRoot)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open extract cache")
	}

	// Ingestion runs need an upstream portal; without one the server is
	// read-only over whatever snapshots are already on disk.
	var b *builder.Builder
	if cfg.Extract.PortalURL != "" {
		if len(cfg.Store.Districts) == 0 {
			logging.Fatal().Msg("Portal configured but store.districts roster is empty")
		}
		source := extract.NewBreakerSource("district-portal",
			extract.NewPortalSource(cfg.Extract.PortalURL, cfg.Extract.PortalAPIKey))
		b, err = builder.New(builder.Config{
			Districts:         cfg.Store.Districts,
			Source:            cfg.Extract.SourceName,
			RequestsPerSecond: cfg.Extract.RatePerSecond,
			Burst:             cfg.Extract.Burst,
		}, store, source, extractCache, builder.PassthroughNormalizer(), nil)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create snapshot builder")
		}
		logging.Info().
			Str("portal_url", cfg.Extract.PortalURL).
			Float64("rate_per_second", cfg.Extract.RatePerSecond).
			Msg("Collection runs enabled")
	} else {
		logging.Info().Msg("No portal configured; collection runs disabled")
	}

	router := api.NewRouter(cfg.Server, api.NewHandler(store, b))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddMaintenanceService(services.NewIntegrityService(store, services.IntegrityOptions{
		Interval:      cfg.Integrity.SweepInterval,
		AutoRecover:   cfg.Integrity.AutoRecover,
		CreateBackups: cfg.Integrity.CreateBackups,
	}))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
