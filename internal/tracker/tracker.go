// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

// Package tracker debounces per-beacon classifications across polling
// cycles before they become externally visible.
//
// A beacon must agree on the same place for three consecutive cycles before
// its location is upserted, which suppresses single-reading flapping. One
// full cycle of silence evicts the beacon: its persisted location is deleted
// and the local state dropped.
package tracker

import (
	"context"
	"fmt"

	"github.com/mizulab/aqualoc/internal/logging"
	"github.com/mizulab/aqualoc/internal/metrics"
)

// confirmThreshold is how many consecutive agreeing cycles confirm a
// location. The counter caps here so a confirmed beacon is upserted once,
// not every cycle.
const confirmThreshold = 3

// LocationStore is the persisted beacon-location collaborator.
type LocationStore interface {
	UpsertLocation(ctx context.Context, beaconID, place string) error
	DeleteLocation(ctx context.Context, beaconID string) error
}

// state is the per-beacon debounce record. Owned exclusively by the polling
// loop; never touched concurrently.
type state struct {
	place string
	count int
	seen  bool
}

// Tracker runs the debounce state machine over all beacons.
type Tracker struct {
	store  LocationStore
	states map[string]*state
}

// New creates a tracker writing confirmed transitions to store.
func New(store LocationStore) *Tracker {
	return &Tracker{
		store:  store,
		states: make(map[string]*state),
	}
}

// Observe records one cycle's classification for a beacon.
//
// A repeated place increments the consecutive count (capped); a different
// place resets the count to 1 and replaces the stored place. The transition
// to exactly the confirmation threshold triggers the persistence upsert.
func (t *Tracker) Observe(ctx context.Context, beaconID, place string) error {
	st, ok := t.states[beaconID]
	if !ok {
		st = &state{}
		t.states[beaconID] = st
	}
	st.seen = true

	if st.place == place {
		if st.count < confirmThreshold {
			st.count++
		}
	} else {
		st.place = place
		st.count = 1
	}

	if st.count != confirmThreshold {
		return nil
	}
	// Cap reached this cycle: confirm exactly once.
	st.count++

	logging.Ctx(ctx).Info().
		Str("beacon", beaconID).
		Str("place", place).
		Msg("location confirmed")
	if err := t.store.UpsertLocation(ctx, beaconID, place); err != nil {
		return fmt.Errorf("failed to persist location for beacon %s: %w", beaconID, err)
	}
	metrics.LocationUpserts.Inc()
	return nil
}

// EndCycle closes a polling cycle. Beacons that stayed silent for the
// entire cycle are evicted: deleted from persisted state exactly once and
// forgotten locally. Beacons seen this cycle are reset for the next.
func (t *Tracker) EndCycle(ctx context.Context) error {
	for beaconID, st := range t.states {
		if st.seen {
			st.seen = false
			continue
		}

		logging.Ctx(ctx).Info().
			Str("beacon", beaconID).
			Msg("beacon silent, evicting")
		// Store first: if the delete fails the state survives and the
		// next cycle retries it instead of orphaning the persisted row.
		if err := t.store.DeleteLocation(ctx, beaconID); err != nil {
			return fmt.Errorf("failed to evict beacon %s: %w", beaconID, err)
		}
		metrics.LocationDeletes.Inc()
		delete(t.states, beaconID)
	}
	return nil
}

// Len returns the number of tracked beacons.
func (t *Tracker) Len() int {
	return len(t.states)
}
