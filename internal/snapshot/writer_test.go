// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// One district carrying an unserializable payload fails alone; the other
// four persist and the snapshot commits as partial.
func TestWriteSnapshotPartialOnDistrictFailure(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	snap := testSnapshot("2026-01-15", "D10", "D20", "D30", "D40", "D50")
	// json.RawMessage must itself be valid JSON to serialize.
	snap.Districts[2].Stats = json.RawMessage(`{broken`)

	meta, err := s.WriteSnapshot(ctx, snap, nil, nil)
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if meta.Status != StatusPartial {
		t.Fatalf("status = %s, want partial", meta.Status)
	}
	if meta.SuccessCount != 4 || meta.FailedCount != 1 {
		t.Fatalf("counts = %d success / %d failed, want 4/1", meta.SuccessCount, meta.FailedCount)
	}
	if len(meta.DistrictErrors) != 1 || meta.DistrictErrors[0].DistrictID != "D30" {
		t.Fatalf("district errors = %+v, want one for D30", meta.DistrictErrors)
	}
	if meta.DistrictErrors[0].Operation != "serialize" {
		t.Fatalf("failed operation = %s, want serialize", meta.DistrictErrors[0].Operation)
	}

	got, err := s.GetSnapshot(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(got.Districts) != 5 {
		t.Fatalf("assembled districts = %d, want 5 (failed entry included)", len(got.Districts))
	}
	for _, d := range got.Districts {
		if d.DistrictID == "D30" && d.Status != StatusFailed {
			t.Fatalf("D30 status = %s, want failed", d.Status)
		}
	}
}

// A directory without the metadata commit marker is invisible to every
// discovery path.
func TestUncommittedSnapshotIsInvisible(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	if err := s.WriteDistrictRecord(ctx, "2026-01-15", &DistrictResult{
		DistrictID: "D10",
		Status:     StatusSuccess,
		Stats:      json.RawMessage(`{"score":1}`),
	}); err != nil {
		t.Fatalf("WriteDistrictRecord: %v", err)
	}

	if snap, err := s.GetCurrentSnapshot(ctx); err != nil || snap != nil {
		t.Fatalf("current = %v, %v; uncommitted snapshot must be invisible", snap, err)
	}
	if snap, err := s.GetSnapshot(ctx, "2026-01-15"); err != nil || snap != nil {
		t.Fatalf("by-id = %v, %v; uncommitted snapshot must be invisible", snap, err)
	}
	listing, err := s.ListSnapshots(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(listing) != 0 {
		t.Fatalf("listing = %d entries, want 0", len(listing))
	}

	// The district record itself is still readable directly.
	rec, err := s.GetDistrictRecord(ctx, "2026-01-15", "D10")
	if err != nil || rec == nil {
		t.Fatalf("GetDistrictRecord = %v, %v, want record", rec, err)
	}
}

// Metadata is written last: after a commit, the directory holds district
// files, manifest, and metadata, and no temp files remain.
func TestCommitLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t, Config{})
	mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20"))

	dir := filepath.Join(s.Root(), "2026-01-15")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Fatalf("unexpected non-JSON file in snapshot dir: %s", e.Name())
		}
		names[e.Name()] = true
	}
	for _, want := range []string{metadataFileName, manifestFileName, "district_D10.json", "district_D20.json"} {
		if !names[want] {
			t.Fatalf("missing %s in committed snapshot dir (have %v)", want, names)
		}
	}
}

func TestWriteSnapshotRejectsBadIDs(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", "2026-01-15\x00"} {
		snap := testSnapshot("2026-01-15", "D10")
		snap.ID = id
		if _, err := s.WriteSnapshot(ctx, snap, nil, nil); err == nil {
			t.Fatalf("WriteSnapshot accepted invalid id %q", id)
		}
	}
}

// An already-failed input record is bookkeeping only: manifest entry, no file.
func TestWriteSnapshotFailedInputRecord(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	snap := testSnapshot("2026-01-15", "D10")
	snap.Districts = append(snap.Districts, DistrictResult{
		DistrictID: "D20",
		Status:     StatusFailed,
		Error:      "upstream timeout",
	})

	meta, err := s.WriteSnapshot(ctx, snap, nil, nil)
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if meta.Status != StatusPartial {
		t.Fatalf("status = %s, want partial", meta.Status)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), "2026-01-15", "district_D20.json")); !os.IsNotExist(err) {
		t.Fatalf("failed record must not produce a payload file, stat err = %v", err)
	}

	manifest, err := s.GetManifest(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	entry, ok := manifest.Districts["D20"]
	if !ok || entry.Status != StatusFailed || entry.Error != "upstream timeout" {
		t.Fatalf("manifest entry for D20 = %+v, want failed with error preserved", entry)
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name                    string
		input                   Status
		success, failed, inputN int
		expected                []string
		want                    Status
	}{
		{"all success", StatusSuccess, 3, 0, 3, nil, StatusSuccess},
		{"one failed", StatusSuccess, 2, 1, 3, nil, StatusPartial},
		{"failed input preserved", StatusFailed, 3, 0, 3, nil, StatusFailed},
		{"empty input", StatusSuccess, 0, 0, 0, nil, StatusFailed},
		{"roster shortfall", StatusSuccess, 2, 0, 2, []string{"a", "b", "c"}, StatusPartial},
		{"roster met", StatusSuccess, 3, 0, 3, []string{"a", "b", "c"}, StatusSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveStatus(tc.input, tc.success, tc.failed, tc.inputN, tc.expected)
			if got != tc.want {
				t.Fatalf("deriveStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAtomicWriteFileReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := atomicWriteFile(path, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("atomicWriteFile: %v", err)
	}
	if err := atomicWriteFile(path, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("atomicWriteFile overwrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"v":2}` {
		t.Fatalf("content = %s, want {\"v\":2}", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

// A rewrite replaces the directory's whole contents: districts and rankings
// from an earlier, larger write must be gone after the new commit.
func TestWriteSnapshotShrinkingRewrite(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	first := testSnapshot("2026-01-15", "D10", "D20", "D30")
	if _, err := s.WriteSnapshot(ctx, first, json.RawMessage(`[{"district_id":"D10","rank":1}]`), nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20"))

	rec, err := s.GetDistrictRecord(ctx, "2026-01-15", "D30")
	if err != nil {
		t.Fatalf("GetDistrictRecord: %v", err)
	}
	if rec != nil {
		t.Fatalf("district D30 still readable after shrinking rewrite: %+v", rec)
	}

	hasRankings, err := s.HasRankings(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("HasRankings: %v", err)
	}
	if hasRankings {
		t.Fatal("rankings artifact survived a rewrite that supplied none")
	}

	m, err := s.GetManifest(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if len(m.Districts) != 2 {
		t.Fatalf("manifest has %d districts after rewrite, want 2", len(m.Districts))
	}

	report, err := s.ValidateIntegrity(ctx)
	if err != nil {
		t.Fatalf("ValidateIntegrity: %v", err)
	}
	if !report.Healthy {
		t.Fatalf("store unhealthy after two valid writes: %+v", report.Issues)
	}
}

// A district that succeeded in an earlier write but arrives failed in a
// rewrite keeps only its failure bookkeeping; the old payload file goes.
func TestWriteSnapshotRewriteDropsPayloadOfNowFailedDistrict(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	mustWrite(t, s, testSnapshot("2026-01-15", "D10", "D20"))

	snap := testSnapshot("2026-01-15", "D10", "D20")
	snap.Districts[1].Status = StatusFailed
	snap.Districts[1].Error = "portal rejected request"
	snap.Districts[1].Stats = nil
	meta := mustWrite(t, s, snap)
	if meta.Status != StatusPartial {
		t.Fatalf("status = %s, want partial", meta.Status)
	}

	rec, err := s.GetDistrictRecord(ctx, "2026-01-15", "D20")
	if err != nil {
		t.Fatalf("GetDistrictRecord: %v", err)
	}
	if rec != nil {
		t.Fatalf("stale payload for failed district D20 still readable: %+v", rec)
	}

	report, err := s.ValidateIntegrity(ctx)
	if err != nil {
		t.Fatalf("ValidateIntegrity: %v", err)
	}
	if !report.Healthy {
		t.Fatalf("store unhealthy after rewrite: %+v", report.Issues)
	}
}
