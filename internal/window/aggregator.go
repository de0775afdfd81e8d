// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package window

import (
	"fmt"
	"sort"
	"time"
)

// Aggregator folds an irregular multi-detector observation stream for a
// single beacon into fixed-width feature records over sliding time windows.
//
// Aggregate is a pure function of its inputs: no hidden state, safe to run
// concurrently across beacons.
type Aggregator struct {
	catalog   *Catalog
	windowSec int64
	sentinel  float64
	weighted  bool
}

// NewAggregator validates the window configuration.
// sentinel is the value emitted for catalog entries with no reading in a
// window (SentinelRaw, or SentinelBoxCox after a power transform).
// weighted selects the recency-weighted mean policy for duplicate readings.
func NewAggregator(catalog *Catalog, window time.Duration, sentinel float64, weighted bool) (*Aggregator, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("aggregator requires a non-empty catalog")
	}
	windowSec := int64(window / time.Second)
	if windowSec <= 0 {
		return nil, fmt.Errorf("time window must be at least one second, got %s", window)
	}
	return &Aggregator{
		catalog:   catalog,
		windowSec: windowSec,
		sentinel:  sentinel,
		weighted:  weighted,
	}, nil
}

// Aggregate produces one feature record per sliding-window endpoint.
//
// Observations are sorted by timestamp (stable, ties keep input order). The
// first |catalog| observations are discarded as warm-up: a heuristic proxy
// for "the window likely has full detector coverage", not a guarantee. Each
// remaining observation at index i closes a window spanning
// [ts[i]-window, ts[i]], inclusive on both ends.
//
// Output length is max(0, len(obs)-|catalog|); every record carries exactly
// |catalog| features, oldest window first. Fewer observations than the
// catalog size yield an empty result, not an error.
func (a *Aggregator) Aggregate(label, beaconID string, obs []Observation) []FeatureRecord {
	warmup := a.catalog.Len()
	if len(obs) <= warmup {
		return nil
	}

	sorted := append([]Observation(nil), obs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	records := make([]FeatureRecord, 0, len(sorted)-warmup)
	left := 0
	for i := warmup; i < len(sorted); i++ {
		start := sorted[i].Timestamp - a.windowSec
		for sorted[left].Timestamp < start {
			left++
		}
		records = append(records, FeatureRecord{
			Label:    label,
			BeaconID: beaconID,
			Features: a.fold(sorted[left : i+1]),
		})
	}
	return records
}

// WindowRecord aggregates a single already-windowed observation batch into
// one feature record. The live polling path uses this: the recency predicate
// on the log table has done the windowing, one record per beacon per cycle.
func (a *Aggregator) WindowRecord(label, beaconID string, obs []Observation) FeatureRecord {
	return FeatureRecord{
		Label:    label,
		BeaconID: beaconID,
		Features: a.fold(obs),
	}
}

// fold reduces one window of observations to a full-width feature row.
// Unmatched catalog entries take the sentinel; observations for pairs outside
// the catalog are ignored.
func (a *Aggregator) fold(win []Observation) []float64 {
	k := a.catalog.Len()
	features := make([]float64, k)

	if a.weighted {
		a.foldWeighted(win, features)
	} else {
		a.foldMean(win, features)
	}
	return features
}

// foldMean computes the arithmetic mean per catalog entry.
func (a *Aggregator) foldMean(win []Observation, features []float64) {
	sums := make([]float64, len(features))
	counts := make([]int, len(features))

	for _, o := range win {
		ci, ok := a.catalog.Index(o.Place, o.DetectorID)
		if !ok {
			continue
		}
		sums[ci] += o.Proximity
		counts[ci]++
	}

	for ci := range features {
		if counts[ci] == 0 {
			features[ci] = a.sentinel
			continue
		}
		features[ci] = sums[ci] / float64(counts[ci])
	}
}

// foldWeighted computes a recency-weighted mean per catalog entry: readings
// within window/2 of the entry's latest reading weigh 1.0, older readings
// still inside the window weigh 0.5.
func (a *Aggregator) foldWeighted(win []Observation, features []float64) {
	latest := make([]int64, len(features))
	seen := make([]bool, len(features))

	for _, o := range win {
		ci, ok := a.catalog.Index(o.Place, o.DetectorID)
		if !ok {
			continue
		}
		if !seen[ci] || o.Timestamp > latest[ci] {
			latest[ci] = o.Timestamp
			seen[ci] = true
		}
	}

	sums := make([]float64, len(features))
	weights := make([]float64, len(features))
	half := float64(a.windowSec) / 2

	for _, o := range win {
		ci, ok := a.catalog.Index(o.Place, o.DetectorID)
		if !ok {
			continue
		}
		w := 0.5
		if float64(latest[ci]-o.Timestamp) <= half {
			w = 1.0
		}
		sums[ci] += o.Proximity * w
		weights[ci] += w
	}

	for ci := range features {
		if !seen[ci] {
			features[ci] = a.sentinel
			continue
		}
		features[ci] = sums[ci] / weights[ci]
	}
}

// Clamp caps proximity readings at ceiling, mirroring the live-path guard
// against outlier readings beyond the undetected magnitude.
func Clamp(obs []Observation, ceiling float64) []Observation {
	clamped := append([]Observation(nil), obs...)
	for i := range clamped {
		if clamped[i].Proximity > ceiling {
			clamped[i].Proximity = ceiling
		}
	}
	return clamped
}
