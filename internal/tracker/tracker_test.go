// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mizulab/aqualoc/internal/metrics"
)

type storeCall struct {
	op     string
	beacon string
	place  string
}

// mockStore records every persistence call in order.
type mockStore struct {
	calls     []storeCall
	upsertErr error
	deleteErr error
}

func (m *mockStore) UpsertLocation(_ context.Context, beaconID, place string) error {
	m.calls = append(m.calls, storeCall{op: "upsert", beacon: beaconID, place: place})
	return m.upsertErr
}

func (m *mockStore) DeleteLocation(_ context.Context, beaconID string) error {
	m.calls = append(m.calls, storeCall{op: "delete", beacon: beaconID})
	return m.deleteErr
}

func (m *mockStore) upserts() []storeCall {
	var out []storeCall
	for _, c := range m.calls {
		if c.op == "upsert" {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockStore) deletes() []storeCall {
	var out []storeCall
	for _, c := range m.calls {
		if c.op == "delete" {
			out = append(out, c)
		}
	}
	return out
}

func runCycle(t *testing.T, tr *Tracker, sightings map[string]string) {
	t.Helper()
	ctx := context.Background()
	for beacon, place := range sightings {
		if err := tr.Observe(ctx, beacon, place); err != nil {
			t.Fatalf("Observe(%s, %s): %v", beacon, place, err)
		}
	}
	if err := tr.EndCycle(ctx); err != nil {
		t.Fatalf("EndCycle: %v", err)
	}
}

func TestObserveConfirmsAfterThreeCycles(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	if len(store.upserts()) != 0 {
		t.Fatalf("upserted after 2 cycles: %v", store.calls)
	}

	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	ups := store.upserts()
	if len(ups) != 1 {
		t.Fatalf("expected 1 upsert after 3 cycles, got %d", len(ups))
	}
	if ups[0].beacon != "tag-1" || ups[0].place != "8-302" {
		t.Errorf("unexpected upsert %+v", ups[0])
	}
}

func TestObserveUpsertsOnceNotEveryCycle(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	for i := 0; i < 10; i++ {
		runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	}
	if got := len(store.upserts()); got != 1 {
		t.Errorf("expected exactly 1 upsert over 10 agreeing cycles, got %d", got)
	}
}

func TestObservePlaceChangeResetsCount(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	// Two cycles of A never confirm; three of B confirm B only.
	runCycle(t, tr, map[string]string{"tag-1": "A"})
	runCycle(t, tr, map[string]string{"tag-1": "A"})
	runCycle(t, tr, map[string]string{"tag-1": "B"})
	runCycle(t, tr, map[string]string{"tag-1": "B"})
	runCycle(t, tr, map[string]string{"tag-1": "B"})

	ups := store.upserts()
	if len(ups) != 1 {
		t.Fatalf("expected 1 upsert, got %v", store.calls)
	}
	if ups[0].place != "B" {
		t.Errorf("persisted place = %q, want B", ups[0].place)
	}
	for _, c := range store.calls {
		if c.place == "A" {
			t.Errorf("place A must never be persisted: %v", store.calls)
		}
	}
}

func TestObservePlaceChangeNeedsThreeFreshCycles(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	runCycle(t, tr, map[string]string{"tag-1": "A"})
	runCycle(t, tr, map[string]string{"tag-1": "A"})
	runCycle(t, tr, map[string]string{"tag-1": "A"})
	runCycle(t, tr, map[string]string{"tag-1": "B"})
	runCycle(t, tr, map[string]string{"tag-1": "B"})
	if got := len(store.upserts()); got != 1 {
		t.Fatalf("B upserted after only 2 cycles: %v", store.calls)
	}
	runCycle(t, tr, map[string]string{"tag-1": "B"})
	ups := store.upserts()
	if len(ups) != 2 || ups[1].place != "B" {
		t.Errorf("expected second upsert for B, got %v", ups)
	}
}

func TestEndCycleEvictsSilentBeaconExactlyOnce(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	// Present for one cycle, then silent.
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, nil)
	dels := store.deletes()
	if len(dels) != 1 {
		t.Fatalf("expected 1 delete after a full silent cycle, got %d", len(dels))
	}
	if dels[0].beacon != "tag-1" {
		t.Errorf("deleted beacon = %q, want tag-1", dels[0].beacon)
	}
	if tr.Len() != 0 {
		t.Errorf("tracker still holds %d beacons after eviction", tr.Len())
	}

	// Further silent cycles must not delete again.
	runCycle(t, tr, nil)
	runCycle(t, tr, nil)
	if got := len(store.deletes()); got != 1 {
		t.Errorf("expected no repeated deletes, got %d", got)
	}
}

func TestEndCycleKeepsSeenBeacons(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	runCycle(t, tr, map[string]string{"tag-1": "8-302", "tag-2": "8-303"})
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})

	dels := store.deletes()
	if len(dels) != 1 || dels[0].beacon != "tag-2" {
		t.Fatalf("expected only tag-2 evicted, got %v", dels)
	}
	if tr.Len() != 1 {
		t.Errorf("tracked beacons = %d, want 1", tr.Len())
	}
}

func TestReappearingBeaconStartsFresh(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, nil) // evicted

	// Needs three new agreeing cycles again, not one more.
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	if got := len(store.upserts()); got != 0 {
		t.Fatalf("upserted immediately after reappearing: %v", store.calls)
	}
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	if got := len(store.upserts()); got != 1 {
		t.Errorf("expected 1 upsert after 3 fresh cycles, got %d", got)
	}
}

func TestObservePropagatesUpsertError(t *testing.T) {
	wantErr := errors.New("connection refused")
	store := &mockStore{upsertErr: wantErr}
	tr := New(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := tr.Observe(ctx, "tag-1", "8-302"); err != nil {
			t.Fatalf("unexpected error before confirmation: %v", err)
		}
		if err := tr.EndCycle(ctx); err != nil {
			t.Fatalf("EndCycle: %v", err)
		}
	}
	err := tr.Observe(ctx, "tag-1", "8-302")
	if !errors.Is(err, wantErr) {
		t.Errorf("Observe error = %v, want wrapped %v", err, wantErr)
	}
}

func TestEndCyclePropagatesDeleteError(t *testing.T) {
	wantErr := errors.New("connection refused")
	store := &mockStore{deleteErr: wantErr}
	tr := New(store)
	ctx := context.Background()

	if err := tr.Observe(ctx, "tag-1", "8-302"); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if err := tr.EndCycle(ctx); err != nil {
		t.Fatalf("first EndCycle: %v", err)
	}
	err := tr.EndCycle(ctx)
	if !errors.Is(err, wantErr) {
		t.Errorf("EndCycle error = %v, want wrapped %v", err, wantErr)
	}
}

func TestEndCycleRetriesDeleteAfterStoreFailure(t *testing.T) {
	wantErr := errors.New("connection refused")
	store := &mockStore{deleteErr: wantErr}
	tr := New(store)
	ctx := context.Background()

	if err := tr.Observe(ctx, "tag-1", "8-302"); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if err := tr.EndCycle(ctx); err != nil {
		t.Fatalf("first EndCycle: %v", err)
	}
	if err := tr.EndCycle(ctx); !errors.Is(err, wantErr) {
		t.Fatalf("EndCycle error = %v, want wrapped %v", err, wantErr)
	}
	// A failed delete must keep the beacon tracked so the persisted row
	// is not orphaned.
	if tr.Len() != 1 {
		t.Fatalf("beacon forgotten after failed delete, Len = %d", tr.Len())
	}

	store.deleteErr = nil
	if err := tr.EndCycle(ctx); err != nil {
		t.Fatalf("retry EndCycle: %v", err)
	}
	if tr.Len() != 0 {
		t.Errorf("beacon still tracked after successful delete")
	}
	if got := len(store.deletes()); got != 2 {
		t.Errorf("delete attempts = %d, want 2", got)
	}
}

func TestTrackerMovesPersistenceMetrics(t *testing.T) {
	store := &mockStore{}
	tr := New(store)

	upsertsBefore := testutil.ToFloat64(metrics.LocationUpserts)
	deletesBefore := testutil.ToFloat64(metrics.LocationDeletes)

	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, map[string]string{"tag-1": "8-302"})
	runCycle(t, tr, nil)

	if got := testutil.ToFloat64(metrics.LocationUpserts) - upsertsBefore; got != 1 {
		t.Errorf("LocationUpserts moved by %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.LocationDeletes) - deletesBefore; got != 1 {
		t.Errorf("LocationDeletes moved by %v, want 1", got)
	}
}
