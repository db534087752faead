// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/distrikt/internal/builder"
	"github.com/tomtom215/distrikt/internal/logging"
	"github.com/tomtom215/distrikt/internal/snapshot"
)

// Handler serves the snapshot API. The builder is optional; run endpoints
// return 503 without one.
type Handler struct {
	store    *snapshot.Store
	builder  *builder.Builder
	validate *validator.Validate
}

// NewHandler creates the API handler.
func NewHandler(store *snapshot.Store, b *builder.Builder) *Handler {
	return &Handler{
		store:    store,
		builder:  b,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/v1/snapshots/current
func (h *Handler) getCurrent(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.GetCurrentSnapshot(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if snap == nil {
		writeError(w, r, http.StatusNotFound, "no successful snapshot available")
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// GET /api/v1/snapshots?status=&schema_version=&min_districts=&limit=
func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := h.store.ListSnapshots(r.Context(), opts)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"snapshots": listing,
		"count":     len(listing),
	})
}

func listOptionsFromQuery(r *http.Request) (snapshot.ListOptions, error) {
	q := r.URL.Query()
	opts := snapshot.ListOptions{
		Status:             snapshot.Status(q.Get("status")),
		SchemaVersion:      q.Get("schema_version"),
		CalculationVersion: q.Get("calculation_version"),
		RankingVersion:     q.Get("ranking_version"),
	}
	for key, dst := range map[string]*int{"min_districts": &opts.MinDistricts, "limit": &opts.Limit} {
		if raw := q.Get(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return opts, &queryError{key, raw}
			}
			*dst = n
		}
	}
	for key, dst := range map[string]*time.Time{"created_after": &opts.CreatedAfter, "created_before": &opts.CreatedBefore} {
		if raw := q.Get(key); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return opts, &queryError{key, raw}
			}
			*dst = ts
		}
	}
	return opts, nil
}

type queryError struct{ key, value string }

func (e *queryError) Error() string { return "invalid query parameter " + e.key + "=" + e.value }

// GET /api/v1/snapshots/{id}
func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.store.GetSnapshot(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if snap == nil {
		writeError(w, r, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// GET /api/v1/snapshots/{id}/metadata
func (h *Handler) getMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.GetMetadata(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if meta == nil {
		writeError(w, r, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, r, http.StatusOK, meta)
}

// GET /api/v1/snapshots/{id}/manifest
func (h *Handler) getManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.store.GetManifest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if manifest == nil {
		writeError(w, r, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, r, http.StatusOK, manifest)
}

// GET /api/v1/snapshots/{id}/districts/{districtID}
func (h *Handler) getDistrict(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetDistrictRecord(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "districtID"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, http.StatusNotFound, "district record not found")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// GET /api/v1/snapshots/{id}/rankings
func (h *Handler) getRankings(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.GetRankings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if data == nil {
		writeError(w, r, http.StatusNotFound, "rankings not available for this snapshot")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type metadataBatchRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

// POST /api/v1/snapshots/metadata/batch
func (h *Handler) metadataBatch(w http.ResponseWriter, r *http.Request) {
	var req metadataBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}
	out, err := h.store.GetMetadataBatch(r.Context(), req.IDs)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"metadata": out,
		"found":    len(out),
	})
}

type writeSnapshotRequest struct {
	Snapshot     snapshot.Snapshot `json:"snapshot" validate:"required"`
	Rankings     json.RawMessage   `json:"rankings,omitempty"`
	OverrideDate string            `json:"override_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// POST /api/v1/admin/snapshots
func (h *Handler) writeSnapshot(w http.ResponseWriter, r *http.Request) {
	var req writeSnapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}
	if req.Snapshot.ID == "" {
		writeError(w, r, http.StatusBadRequest, "snapshot.id is required")
		return
	}

	var opts *snapshot.WriteOptions
	if req.OverrideDate != "" {
		opts = &snapshot.WriteOptions{OverrideDate: req.OverrideDate}
	}
	meta, err := h.store.WriteSnapshot(r.Context(), &req.Snapshot, req.Rankings, opts)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("snapshot_id", meta.SnapshotID).
		Str("status", string(meta.Status)).
		Msg("Snapshot written via API")
	writeJSON(w, r, http.StatusCreated, meta)
}

// DELETE /api/v1/admin/snapshots/{id}
func (h *Handler) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteSnapshot(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("snapshot_id", id).Msg("Snapshot deleted via API")
	writeJSON(w, r, http.StatusOK, map[string]string{"deleted": id})
}

type runRequest struct {
	LogicalDate    string `json:"logical_date" validate:"required,datetime=2006-01-02"`
	CollectionDate string `json:"collection_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ClosingPeriod  bool   `json:"closing_period,omitempty"`
	Force          bool   `json:"force,omitempty"`
}

// POST /api/v1/admin/runs
func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	if h.builder == nil {
		writeError(w, r, http.StatusServiceUnavailable, "no collection source configured")
		return
	}
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	result, err := h.builder.Run(r.Context(), builder.RunOptions{
		LogicalDate:    req.LogicalDate,
		CollectionDate: req.CollectionDate,
		ClosingPeriod:  req.ClosingPeriod,
		Force:          req.Force,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, r, status, result)
}

// GET /api/v1/admin/integrity
func (h *Handler) validateIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.ValidateIntegrity(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

type recoveryRequest struct {
	CreateBackups        bool `json:"create_backups"`
	RemoveCorruptedFiles bool `json:"remove_corrupted_files"`
	ForceRecovery        bool `json:"force_recovery"`
}

// POST /api/v1/admin/recovery
func (h *Handler) recover(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := h.store.RecoverFromCorruption(r.Context(), snapshot.RecoveryOptions{
		CreateBackups:        req.CreateBackups,
		RemoveCorruptedFiles: req.RemoveCorruptedFiles,
		ForceRecovery:        req.ForceRecovery,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// GET /api/v1/admin/recovery/guidance
func (h *Handler) recoveryGuidance(w http.ResponseWriter, r *http.Request) {
	guidance, err := h.store.RecoveryGuidance(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, guidance)
}

// GET /api/v1/admin/performance
func (h *Handler) performanceMetrics(w http.ResponseWriter, r *http.Request) {
	current, listing := h.store.CacheStats()
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"reads":         h.store.PerformanceMetrics(),
		"current_cache": current,
		"listing_cache": listing,
	})
}

// DELETE /api/v1/admin/performance
func (h *Handler) resetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	h.store.ResetPerformanceMetrics()
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "reset"})
}
