// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package window

import (
	"fmt"
	"strings"
)

// Sentinel proximity values marking "no reading for this detector in the
// window". Raw readings never reach these magnitudes, so the classifier can
// treat them as a distinct signal.
const (
	// SentinelRaw is the undetected value for untransformed proximities.
	SentinelRaw = 300.0

	// SentinelBoxCox is the undetected value after a Box-Cox power transform,
	// which compresses the value range.
	SentinelBoxCox = 10.0
)

// Observation is a single proximity reading reported by one detector for one
// beacon. Immutable once read from the log table.
type Observation struct {
	BeaconLabel string  `json:"beacon_label"`
	Place       string  `json:"place"`
	DetectorID  string  `json:"detector_id"`
	Timestamp   int64   `json:"timestamp"` // unix seconds
	Proximity   float64 `json:"proximity"`
}

// FeatureRecord is one fixed-width model input row. Features holds exactly
// one aggregated proximity per catalog entry, in catalog order.
type FeatureRecord struct {
	Label    string    `json:"label"`
	BeaconID string    `json:"beacon_id,omitempty"`
	Features []float64 `json:"features"`
}

// Entry is one (place, detector) pair of the detector catalog.
type Entry struct {
	Place    string `json:"place"`
	Detector string `json:"detector"`
}

// Key returns the canonical "place-detector" column name for this entry.
func (e Entry) Key() string {
	return e.Place + "-" + e.Detector
}

// Catalog is the fixed ordered set of (place, detector) pairs defining the
// feature vector layout. The entry order is the feature column order; the
// index map is computed once at construction so the hot aggregation path
// never formats strings.
type Catalog struct {
	entries []Entry
	index   map[Entry]int
}

// NewCatalog builds a catalog from ordered entries.
// Duplicate entries are a configuration error.
func NewCatalog(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog must have at least one entry")
	}

	index := make(map[Entry]int, len(entries))
	for i, e := range entries {
		if e.Place == "" || e.Detector == "" {
			return nil, fmt.Errorf("catalog entry %d is incomplete: %+v", i, e)
		}
		if _, dup := index[e]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %s", e.Key())
		}
		index[e] = i
	}

	return &Catalog{entries: append([]Entry(nil), entries...), index: index}, nil
}

// ParseCatalog builds a catalog from "place:detector" strings, the form used
// in configuration files and environment variables.
func ParseCatalog(specs []string) (*Catalog, error) {
	entries := make([]Entry, 0, len(specs))
	for _, s := range specs {
		place, detector, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("invalid detector spec %q: want place:detector", s)
		}
		entries = append(entries, Entry{Place: place, Detector: detector})
	}
	return NewCatalog(entries)
}

// Len returns the feature vector width.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns the ordered catalog entries.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Index returns the feature column for a (place, detector) pair, or false
// when the pair is not part of the catalog.
func (c *Catalog) Index(place, detector string) (int, bool) {
	i, ok := c.index[Entry{Place: place, Detector: detector}]
	return i, ok
}

// Columns returns the ordered "place-detector" column names.
func (c *Catalog) Columns() []string {
	cols := make([]string, len(c.entries))
	for i, e := range c.entries {
		cols[i] = e.Key()
	}
	return cols
}
