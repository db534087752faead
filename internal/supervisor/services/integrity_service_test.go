// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/distrikt/internal/snapshot"
)

func seedStore(t *testing.T) *snapshot.Store {
	t.Helper()
	store, err := snapshot.New(snapshot.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	snap := &snapshot.Snapshot{
		ID:        "2026-01-15",
		CreatedAt: time.Now().UTC(),
		Status:    snapshot.StatusSuccess,
		Districts: []snapshot.DistrictResult{{
			DistrictID:  "D10",
			CollectedAt: time.Now().UTC(),
			Status:      snapshot.StatusSuccess,
			Stats:       json.RawMessage(`{"score":1}`),
		}},
		Metadata: snapshot.SourceMetadata{Source: "test", AsOfDate: "2026-01-15"},
	}
	if _, err := store.WriteSnapshot(context.Background(), snap, nil, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	return store
}

func TestIntegrityServiceSweepsImmediately(t *testing.T) {
	store := seedStore(t)
	svc := NewIntegrityService(store, IntegrityOptions{Interval: time.Hour})
	svc.sweepDone = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-svc.sweepDone:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep within 2s of start")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancellation")
	}
}

func TestIntegrityServiceAutoRecovers(t *testing.T) {
	store := seedStore(t)

	// Introduce a reconcilable inconsistency: metadata counts disagreeing
	// with the manifest.
	ctx := context.Background()
	meta, err := store.GetMetadata(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	meta.SuccessCount = 9
	data, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(store.Root(), "2026-01-15", "metadata.json"), data, 0o644); err != nil {
		t.Fatalf("rewrite metadata: %v", err)
	}
	store.InvalidateCaches()

	svc := NewIntegrityService(store, IntegrityOptions{
		Interval:    time.Hour,
		AutoRecover: true,
	})
	svc.sweepDone = make(chan struct{}, 1)

	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(serveCtx)

	select {
	case <-svc.sweepDone:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep within 2s of start")
	}

	fixed, err := store.GetMetadata(ctx, "2026-01-15")
	if err != nil {
		t.Fatalf("GetMetadata after sweep: %v", err)
	}
	if fixed.SuccessCount != 1 {
		t.Fatalf("success count = %d after auto-recovery, want 1", fixed.SuccessCount)
	}
}

func TestIntegrityServiceString(t *testing.T) {
	store := seedStore(t)
	if got := NewIntegrityService(store, IntegrityOptions{}).String(); got != "integrity-sweep" {
		t.Fatalf("String = %q", got)
	}
}
