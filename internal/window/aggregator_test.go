// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package window

import (
	"math"
	"reflect"
	"testing"
	"time"
)

// threeDetectorCatalog mirrors the smallest realistic deployment: two rooms,
// one with two detectors.
func threeDetectorCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog([]Entry{
		{Place: "R1", Detector: "0"},
		{Place: "R1", Detector: "1"},
		{Place: "R2", Detector: "0"},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}

func newTestAggregator(t *testing.T, catalog *Catalog, weighted bool) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(catalog, 30*time.Second, SentinelRaw, weighted)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return agg
}

func obsAt(place, detector string, ts int64, proxi float64) Observation {
	return Observation{
		BeaconLabel: "12",
		Place:       place,
		DetectorID:  detector,
		Timestamp:   ts,
		Proximity:   proxi,
	}
}

func TestNewAggregatorValidation(t *testing.T) {
	catalog := threeDetectorCatalog(t)

	if _, err := NewAggregator(nil, 30*time.Second, SentinelRaw, false); err == nil {
		t.Error("expected error for nil catalog")
	}
	if _, err := NewAggregator(catalog, 0, SentinelRaw, false); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := NewAggregator(catalog, -time.Minute, SentinelRaw, false); err == nil {
		t.Error("expected error for negative window")
	}
}

// Scenario from the deployment handbook: catalog width 3, window 30s, three
// observations. All three are warm-up, so no records are emitted.
func TestAggregateWarmupOnlyInput(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 5, 60),
		obsAt("R1", "0", 35, 55),
	}

	if got := agg.Aggregate("corridor", "12", obs); len(got) != 0 {
		t.Fatalf("expected empty output for warm-up-only input, got %d records", len(got))
	}
}

func TestAggregateWarmupBound(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"empty", 0, 0},
		{"below catalog size", 2, 0},
		{"equal catalog size", 3, 0},
		{"one past warm-up", 4, 1},
		{"well past warm-up", 10, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := make([]Observation, tt.n)
			for i := range obs {
				obs[i] = obsAt("R1", "0", int64(i), 50)
			}
			got := agg.Aggregate("R1", "12", obs)
			if len(got) != tt.want {
				t.Errorf("output length = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestAggregateWidthInvariant(t *testing.T) {
	catalog := threeDetectorCatalog(t)
	agg := newTestAggregator(t, catalog, false)

	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 5, 60),
		obsAt("R2", "0", 10, 70),
		obsAt("R1", "0", 15, 55),
		obsAt("R1", "0", 50, 52),
	}

	for _, rec := range agg.Aggregate("R1", "12", obs) {
		if len(rec.Features) != catalog.Len() {
			t.Errorf("record width = %d, want %d", len(rec.Features), catalog.Len())
		}
	}
}

func TestAggregateSimpleMean(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	// Warm-up consumes the first three. The fourth closes a window [0, 20]
	// holding all four observations: R1-0 readings 50 and 54 average to 52.
	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 5, 60),
		obsAt("R2", "0", 10, 70),
		obsAt("R1", "0", 20, 54),
	}

	got := agg.Aggregate("R1", "12", obs)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	want := []float64{52, 60, 70}
	if !reflect.DeepEqual(got[0].Features, want) {
		t.Errorf("features = %v, want %v", got[0].Features, want)
	}
	if got[0].Label != "R1" || got[0].BeaconID != "12" {
		t.Errorf("record identity = (%s, %s), want (R1, 12)", got[0].Label, got[0].BeaconID)
	}
}

func TestAggregateWindowExcludesOldObservations(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	// The final window [41, 71] excludes the readings at t<=10; only the
	// t=41 and t=71 readings for R1-0 remain.
	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 5, 60),
		obsAt("R2", "0", 10, 70),
		obsAt("R1", "0", 41, 80),
		obsAt("R1", "0", 71, 90),
	}

	got := agg.Aggregate("R1", "12", obs)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	last := got[1].Features
	if last[0] != 85 {
		t.Errorf("R1-0 mean = %v, want 85", last[0])
	}
	if last[1] != SentinelRaw || last[2] != SentinelRaw {
		t.Errorf("expired entries = %v/%v, want sentinel %v", last[1], last[2], SentinelRaw)
	}
}

func TestAggregateWindowBoundsInclusive(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	// The reading at t=0 sits exactly window seconds before t=30 and must
	// still be included.
	obs := []Observation{
		obsAt("R1", "0", 0, 40),
		obsAt("R1", "1", 5, 60),
		obsAt("R2", "0", 10, 70),
		obsAt("R1", "0", 30, 60),
	}

	got := agg.Aggregate("R1", "12", obs)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Features[0] != 50 {
		t.Errorf("R1-0 mean = %v, want 50 (boundary reading included)", got[0].Features[0])
	}
}

func TestAggregateSentinelForUnseenDetector(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	// R2-0 never reports anywhere in the input.
	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 5, 60),
		obsAt("R1", "0", 10, 52),
		obsAt("R1", "1", 15, 62),
		obsAt("R1", "0", 20, 54),
	}

	for i, rec := range agg.Aggregate("R1", "12", obs) {
		v := rec.Features[2]
		if v != SentinelRaw {
			t.Errorf("record %d: R2-0 = %v, want sentinel %v", i, v, SentinelRaw)
		}
		if math.IsNaN(v) || v == 0 {
			t.Errorf("record %d: sentinel degenerated to %v", i, v)
		}
	}
}

func TestAggregateIgnoresUncataloguedDetector(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 5, 60),
		obsAt("R9", "3", 10, 999), // decommissioned detector, not in catalog
		obsAt("R2", "0", 15, 70),
		obsAt("R1", "0", 20, 50),
	}

	got := agg.Aggregate("R1", "12", obs)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, rec := range got {
		for ci, v := range rec.Features {
			if v == 999 {
				t.Errorf("uncatalogued reading leaked into column %d", ci)
			}
		}
	}
}

func TestAggregateSortsUnorderedInput(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	ordered := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 5, 60),
		obsAt("R2", "0", 10, 70),
		obsAt("R1", "0", 20, 54),
	}
	shuffled := []Observation{ordered[3], ordered[1], ordered[0], ordered[2]}

	want := agg.Aggregate("R1", "12", ordered)
	got := agg.Aggregate("R1", "12", shuffled)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unordered input changed output:\ngot  %v\nwant %v", got, want)
	}
}

func TestAggregateDeterminism(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), true)

	obs := []Observation{
		obsAt("R1", "0", 0, 50.3),
		obsAt("R1", "1", 5, 60.7),
		obsAt("R2", "0", 10, 70.1),
		obsAt("R1", "0", 22, 54.9),
		obsAt("R1", "1", 29, 61.2),
	}

	first := agg.Aggregate("R1", "12", obs)
	for run := 0; run < 5; run++ {
		if got := agg.Aggregate("R1", "12", obs); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differed from first run", run)
		}
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	obs := []Observation{
		obsAt("R1", "0", 20, 54),
		obsAt("R1", "1", 5, 60),
		obsAt("R2", "0", 10, 70),
		obsAt("R1", "0", 0, 50),
	}
	snapshot := append([]Observation(nil), obs...)

	agg.Aggregate("R1", "12", obs)
	if !reflect.DeepEqual(obs, snapshot) {
		t.Error("Aggregate mutated its input slice")
	}
}

// When every reading sits within window/2 of its group's latest reading, all
// weights are 1.0 and the weighted mean collapses to the simple mean.
func TestWeightedEqualsSimpleWhenRecent(t *testing.T) {
	catalog := threeDetectorCatalog(t)
	simple := newTestAggregator(t, catalog, false)
	weighted := newTestAggregator(t, catalog, true)

	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R1", "1", 2, 60),
		obsAt("R2", "0", 4, 70),
		obsAt("R1", "0", 10, 58),
		obsAt("R1", "1", 12, 64),
	}

	got := weighted.Aggregate("R1", "12", obs)
	want := simple.Aggregate("R1", "12", obs)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("weighted = %v, want simple %v", got, want)
	}
}

func TestWeightedMeanDiscountsStaleReadings(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), true)

	// Window [0, 25]: R1-0 readings at t=0 (25s before the group's latest,
	// beyond window/2=15 -> weight 0.5) and t=25 (weight 1.0).
	// Weighted mean = (40*0.5 + 70*1.0) / 1.5 = 60.
	obs := []Observation{
		obsAt("R1", "0", 0, 40),
		obsAt("R1", "1", 5, 60),
		obsAt("R2", "0", 10, 70),
		obsAt("R1", "0", 25, 70),
	}

	got := agg.Aggregate("R1", "12", obs)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if math.Abs(got[0].Features[0]-60) > 1e-12 {
		t.Errorf("weighted mean = %v, want 60", got[0].Features[0])
	}
}

func TestWindowRecordSingleBatch(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), false)

	obs := []Observation{
		obsAt("R1", "0", 100, 42),
		obsAt("R1", "0", 110, 44),
	}

	rec := agg.WindowRecord("12", "12", obs)
	want := []float64{43, SentinelRaw, SentinelRaw}
	if !reflect.DeepEqual(rec.Features, want) {
		t.Errorf("features = %v, want %v", rec.Features, want)
	}
}

func TestWindowRecordEmptyBatchAllSentinel(t *testing.T) {
	agg := newTestAggregator(t, threeDetectorCatalog(t), true)

	rec := agg.WindowRecord("12", "12", nil)
	for ci, v := range rec.Features {
		if v != SentinelRaw {
			t.Errorf("column %d = %v, want sentinel", ci, v)
		}
	}
}

func TestClamp(t *testing.T) {
	obs := []Observation{
		obsAt("R1", "0", 0, 80),
		obsAt("R1", "0", 5, 140),
	}

	clamped := Clamp(obs, 100)
	if clamped[0].Proximity != 80 || clamped[1].Proximity != 100 {
		t.Errorf("clamped = %v/%v, want 80/100", clamped[0].Proximity, clamped[1].Proximity)
	}
	if obs[1].Proximity != 140 {
		t.Error("Clamp mutated its input")
	}
}

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]string{"8-302:0", "8-302:1", "8-303:0"})
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if catalog.Len() != 3 {
		t.Fatalf("catalog size = %d, want 3", catalog.Len())
	}
	// Place names contain hyphens, so the entry separator is a colon.
	if i, ok := catalog.Index("8-302", "1"); !ok || i != 1 {
		t.Errorf("Index(8-302, 1) = %d,%v want 1,true", i, ok)
	}
	wantCols := []string{"8-302-0", "8-302-1", "8-303-0"}
	if !reflect.DeepEqual(catalog.Columns(), wantCols) {
		t.Errorf("columns = %v, want %v", catalog.Columns(), wantCols)
	}

	if _, err := ParseCatalog([]string{"no-detector"}); err == nil {
		t.Error("expected error for spec without separator")
	}
	if _, err := ParseCatalog([]string{"8-302:0", "8-302:0"}); err == nil {
		t.Error("expected error for duplicate entry")
	}
	if _, err := ParseCatalog(nil); err == nil {
		t.Error("expected error for empty catalog")
	}
}
