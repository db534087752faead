// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/distrikt/internal/config"
	"github.com/tomtom215/distrikt/internal/middleware"
)

// NewRouter assembles the HTTP surface: public snapshot reads, JWT-gated
// admin operations, Prometheus metrics, and health.
func NewRouter(cfg config.ServerConfig, h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Reads are cheap thanks to the TTL caches, but a runaway client
		// still gets throttled per IP.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(300, time.Minute))

			r.Get("/snapshots", h.listSnapshots)
			r.Get("/snapshots/current", h.getCurrent)
			r.Post("/snapshots/metadata/batch", h.metadataBatch)
			r.Get("/snapshots/{id}", h.getSnapshot)
			r.Get("/snapshots/{id}/metadata", h.getMetadata)
			r.Get("/snapshots/{id}/manifest", h.getManifest)
			r.Get("/snapshots/{id}/rankings", h.getRankings)
			r.Get("/snapshots/{id}/districts/{districtID}", h.getDistrict)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(httprate.LimitByIP(60, time.Minute))
			r.Use(adminAuth(cfg.AdminJWTSecret))

			r.Post("/snapshots", h.writeSnapshot)
			r.Delete("/snapshots/{id}", h.deleteSnapshot)
			r.Post("/runs", h.triggerRun)
			r.Get("/integrity", h.validateIntegrity)
			r.Post("/recovery", h.recover)
			r.Get("/recovery/guidance", h.recoveryGuidance)
			r.Get("/performance", h.performanceMetrics)
			r.Delete("/performance", h.resetPerformanceMetrics)
		})
	})

	return r
}
