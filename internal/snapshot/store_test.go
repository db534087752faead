// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func testDistrict(id string, n int) DistrictResult {
	return DistrictResult{
		DistrictID:  id,
		DisplayName: "District " + id,
		CollectedAt: time.Now().UTC(),
		Status:      StatusSuccess,
		Stats:       json.RawMessage(fmt.Sprintf(`{"score":%d}`, n)),
	}
}

func testSnapshot(id string, districtIDs ...string) *Snapshot {
	snap := &Snapshot{
		ID:            id,
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: "1.0",
		Status:        StatusSuccess,
		Metadata: SourceMetadata{
			Source:   "district-portal",
			AsOfDate: id,
		},
	}
	for i, d := range districtIDs {
		snap.Districts = append(snap.Districts, testDistrict(d, i+1))
	}
	return snap
}

func mustWrite(t *testing.T, s *Store, snap *Snapshot) *Metadata {
	t.Helper()
	meta, err := s.WriteSnapshot(context.Background(), snap, nil, nil)
	if err != nil {
		t.Fatalf("WriteSnapshot(%s): %v", snap.ID, err)
	}
	return meta
}

func TestStoreEmptyReads(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	snap, err := s.GetCurrentSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetCurrentSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil current snapshot on empty store, got %+v", snap)
	}

	listing, err := s.ListSnapshots(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(listing) != 0 {
		t.Fatalf("expected empty listing, got %d entries", len(listing))
	}

	byID, err := s.GetSnapshot(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if byID != nil {
		t.Fatalf("expected nil for absent snapshot, got %+v", byID)
	}
}

func TestStoreWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	meta := mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20", "D30"))
	if meta.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", meta.Status)
	}
	if meta.DistrictCount != 3 || meta.SuccessCount != 3 || meta.FailedCount != 0 {
		t.Fatalf("counts = %d/%d/%d, want 3/3/0", meta.DistrictCount, meta.SuccessCount, meta.FailedCount)
	}

	snap, err := s.GetCurrentSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetCurrentSnapshot: %v", err)
	}
	if snap == nil || snap.ID != "2026-01-15" {
		t.Fatalf("current = %v, want 2026-01-15", snap)
	}
	if len(snap.Districts) != 3 {
		t.Fatalf("districts = %d, want 3", len(snap.Districts))
	}

	rec, err := s.GetDistrictRecord(ctx, "2026-01-15", "D20")
	if err != nil {
		t.Fatalf("GetDistrictRecord: %v", err)
	}
	if rec == nil || rec.DistrictID != "D20" {
		t.Fatalf("record = %v, want D20", rec)
	}
}

// Lifecycle: empty store, successful write, failed write, delete. The failed
// write is persisted and visible in listings but never becomes current.
func TestStoreLifecycle(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20"))

	failed := testSnapshot("2026-01-16")
	failed.Status = StatusFailed
	failed.Errors = []string{"upstream validation rejected payload"}
	failedMeta := mustWrite(t, s, failed)
	if failedMeta.Status != StatusFailed {
		t.Fatalf("failed write status = %s, want failed", failedMeta.Status)
	}

	// The failed snapshot is newer but must not become current.
	snap, err := s.GetCurrentSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetCurrentSnapshot: %v", err)
	}
	if snap == nil || snap.ID != "2026-01-15" {
		t.Fatalf("current = %v, want 2026-01-15", snap)
	}

	// But it is visible in the listing for auditability.
	listing, err := s.ListSnapshots(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(listing) != 2 {
		t.Fatalf("listing = %d entries, want 2", len(listing))
	}

	if err := s.DeleteSnapshot(ctx, "2026-01-16"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	listing, err = s.ListSnapshots(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListSnapshots after delete: %v", err)
	}
	if len(listing) != 1 || listing[0].SnapshotID != "2026-01-15" {
		t.Fatalf("listing after delete = %+v, want only 2026-01-15", listing)
	}

	// Deleting a snapshot that does not exist is not an error.
	if err := s.DeleteSnapshot(ctx, "2026-01-16"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestStoreIdempotentOverwrite(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20"))
	mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20", "D30"))

	snap, err := s.GetSnapshot(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.Districts) != 3 {
		t.Fatalf("districts after overwrite = %d, want 3", len(snap.Districts))
	}

	listing, err := s.ListSnapshots(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(listing) != 1 {
		t.Fatalf("listing = %d entries after overwrite, want 1", len(listing))
	}
}

func TestStoreShouldUpdate(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	// Nothing stored yet.
	dec, err := s.ShouldUpdate(ctx, "2026-01-31", "2026-02-01")
	if err != nil {
		t.Fatalf("ShouldUpdate: %v", err)
	}
	if !dec.ShouldUpdate || dec.Reason != ReasonNoExisting {
		t.Fatalf("decision = %+v, want update/no_existing", dec)
	}

	snap := testSnapshot("2026-01-31", "D10")
	snap.Metadata.IsClosingPeriodData = true
	snap.Metadata.CollectionDate = "2026-02-02"
	snap.Metadata.LogicalDate = "2026-01-31"
	mustWrite(t, s, snap)

	cases := []struct {
		name       string
		newDate    string
		wantUpdate bool
		wantReason UpdateReason
	}{
		{"newer collection", "2026-02-03", true, ReasonNewerData},
		{"same day refresh", "2026-02-02", true, ReasonSameDayRefresh},
		{"stale collection", "2026-02-01", false, ReasonExistingNewer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := s.ShouldUpdate(ctx, "2026-01-31", tc.newDate)
			if err != nil {
				t.Fatalf("ShouldUpdate: %v", err)
			}
			if dec.ShouldUpdate != tc.wantUpdate || dec.Reason != tc.wantReason {
				t.Fatalf("decision = %+v, want update=%v reason=%s", dec, tc.wantUpdate, tc.wantReason)
			}
			if dec.ExistingCollectionDate != "2026-02-02" {
				t.Fatalf("existing date = %q, want 2026-02-02", dec.ExistingCollectionDate)
			}
		})
	}
}

// Unreadable existing metadata fails open toward accepting new data.
func TestStoreShouldUpdateFailsOpenOnCorruptMetadata(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	mustWrite(t, s, testSnapshot("2026-01-31", "D10"))
	metaPath := filepath.Join(s.Root(), "2026-01-31", metadataFileName)
	if err := os.WriteFile(metaPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt metadata: %v", err)
	}

	dec, err := s.ShouldUpdate(ctx, "2026-01-31", "2026-02-01")
	if err != nil {
		t.Fatalf("ShouldUpdate: %v", err)
	}
	if !dec.ShouldUpdate || dec.Reason != ReasonNoExisting {
		t.Fatalf("decision = %+v, want fail-open update/no_existing", dec)
	}
}

func TestStoreOverrideDate(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	// Data collected 2026-02-02 for logical date 2026-01-31 lands under the
	// logical date.
	snap := testSnapshot("2026-02-02", "D10")
	snap.Metadata.IsClosingPeriodData = true
	snap.Metadata.CollectionDate = "2026-02-02"
	snap.Metadata.LogicalDate = "2026-01-31"
	meta, err := s.WriteSnapshot(ctx, snap, nil, &WriteOptions{OverrideDate: "2026-01-31"})
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if meta.SnapshotID != "2026-01-31" {
		t.Fatalf("snapshot id = %s, want 2026-01-31", meta.SnapshotID)
	}

	got, err := s.GetSnapshot(ctx, "2026-01-31")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got == nil || got.Metadata.CollectionDate != "2026-02-02" {
		t.Fatalf("snapshot = %+v, want collection date preserved", got)
	}
	if absent, err := s.GetSnapshot(ctx, "2026-02-02"); err != nil || absent != nil {
		t.Fatalf("collection date must not get its own snapshot: %v, %v", absent, err)
	}
}

func TestStorePerformanceMetrics(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	mustWrite(t, s, testSnapshot("2026-01-15", "D10"))

	if _, err := s.GetCurrentSnapshot(ctx); err != nil {
		t.Fatalf("GetCurrentSnapshot: %v", err)
	}
	if _, err := s.GetCurrentSnapshot(ctx); err != nil {
		t.Fatalf("GetCurrentSnapshot: %v", err)
	}

	pm := s.PerformanceMetrics()
	if pm.TotalReads < 2 {
		t.Fatalf("total reads = %d, want >= 2", pm.TotalReads)
	}
	if pm.CacheHits < 1 {
		t.Fatalf("cache hits = %d, want >= 1 (second read served from cache)", pm.CacheHits)
	}
	if pm.MaxConcurrentReads < 1 {
		t.Fatalf("max concurrent = %d, want >= 1", pm.MaxConcurrentReads)
	}

	s.ResetPerformanceMetrics()
	pm = s.PerformanceMetrics()
	if pm.TotalReads != 0 || pm.CacheHits != 0 {
		t.Fatalf("metrics after reset = %+v, want zeroed", pm)
	}
}

func TestStoreMetadataBatch(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	mustWrite(t, s, testSnapshot("2026-01-14", "D10"))
	mustWrite(t, s, testSnapshot("2026-01-15", "D10"))

	got, err := s.GetMetadataBatch(ctx, []string{"2026-01-14", "2026-01-15", "2026-01-16"})
	if err != nil {
		t.Fatalf("GetMetadataBatch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("batch = %d entries, want 2", len(got))
	}
	if got["2026-01-16"] != nil {
		t.Fatalf("absent id must be missing from result")
	}

	// Warm the listing cache; absent ids now short-circuit without a probe.
	if _, err := s.ListSnapshots(ctx, ListOptions{}); err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	got, err = s.GetMetadataBatch(ctx, []string{"2026-01-15", "2026-01-16"})
	if err != nil {
		t.Fatalf("GetMetadataBatch (warm): %v", err)
	}
	if len(got) != 1 || got["2026-01-15"] == nil {
		t.Fatalf("warm batch = %+v, want only 2026-01-15", got)
	}
}

func TestStoreRankings(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	rankings := json.RawMessage(`[{"district_id":"D10","rank":1}]`)
	snap := testSnapshot("2026-01-15", "D10")
	if _, err := s.WriteSnapshot(ctx, snap, rankings, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	ok, err := s.HasRankings(ctx, "2026-01-15")
	if err != nil || !ok {
		t.Fatalf("HasRankings = %v, %v, want true", ok, err)
	}
	got, err := s.GetRankings(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetRankings: %v", err)
	}
	if string(got) != string(rankings) {
		t.Fatalf("rankings = %s, want %s", got, rankings)
	}

	mustWrite(t, s, testSnapshot("2026-01-16", "D10"))
	ok, err = s.HasRankings(ctx, "2026-01-16")
	if err != nil || ok {
		t.Fatalf("HasRankings without artifact = %v, %v, want false", ok, err)
	}
	if data, err := s.GetRankings(ctx, "2026-01-16"); err != nil || data != nil {
		t.Fatalf("GetRankings without artifact = %v, %v, want nil, nil", data, err)
	}
}

func TestStoreExpectedRosterShortfall(t *testing.T) {
	s := newTestStore(t, Config{ExpectedDistricts: []string{"D10", "D20", "D30"}})

	meta := mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20"))
	if meta.Status != StatusPartial {
		t.Fatalf("status with roster shortfall = %s, want partial", meta.Status)
	}

	meta = mustWrite(t, s, testSnapshot("2026-01-16", "D10", "D20", "D30"))
	if meta.Status != StatusSuccess {
		t.Fatalf("status with full roster = %s, want success", meta.Status)
	}
}
