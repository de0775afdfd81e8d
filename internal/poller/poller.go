// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

/*
Package poller runs the live classification cycle.

Each cycle fetches recent observations for registered beacons, folds them
into one fixed-width feature record per beacon, classifies the record, and
feeds the prediction to the debounce tracker. The tracker decides when a
classification becomes a persisted location.

The cycle is driven by a ticker and runs as a supervised service; a failed
cycle ends the service run and the supervisor restarts it with backoff.
*/
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mizulab/aqualoc/internal/classify"
	"github.com/mizulab/aqualoc/internal/database"
	"github.com/mizulab/aqualoc/internal/logging"
	"github.com/mizulab/aqualoc/internal/metrics"
	"github.com/mizulab/aqualoc/internal/window"
)

// ObservationSource yields raw proximity readings for a cycle.
type ObservationSource interface {
	FetchRecentObservations(ctx context.Context, window time.Duration, beacons []string) ([]database.Observation, error)
}

// Tracker debounces per-cycle classifications into persisted locations.
type Tracker interface {
	Observe(ctx context.Context, beaconID, place string) error
	EndCycle(ctx context.Context) error
}

// Options configures a Poller.
type Options struct {
	// Interval is the pause between cycles.
	Interval time.Duration
	// Window is the observation recency window passed to the source.
	Window time.Duration
	// ProximityCeiling clamps raw readings before aggregation; 0 disables.
	ProximityCeiling float64
	// Beacons restricts polling to these BLE IDs; empty polls all.
	Beacons []string
	// PowerParams holds fitted Box-Cox lambdas; nil skips the transform.
	PowerParams window.PowerParams
	// Reducer optionally projects feature records before classification.
	Reducer *classify.Reducer
}

// Poller drives the classification cycle.
type Poller struct {
	source     ObservationSource
	aggregator *window.Aggregator
	catalog    *window.Catalog
	classifier classify.Classifier
	tracker    Tracker
	opts       Options
}

// New creates a poller. The aggregator's catalog must be the same one
// passed here; it decides which observations participate in a record.
func New(source ObservationSource, catalog *window.Catalog, aggregator *window.Aggregator, classifier classify.Classifier, tracker Tracker, opts Options) (*Poller, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", opts.Interval)
	}
	if opts.Window <= 0 {
		return nil, fmt.Errorf("poll window must be positive, got %s", opts.Window)
	}
	return &Poller{
		source:     source,
		aggregator: aggregator,
		catalog:    catalog,
		classifier: classifier,
		tracker:    tracker,
		opts:       opts,
	}, nil
}

// Serve implements suture.Service. It runs cycles until the context is
// canceled. A failed cycle ends Serve with an error; the supervisor
// restarts the service with backoff.
func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		cycleCtx := logging.ContextWithNewCycleID(ctx)
		start := time.Now()
		err := p.RunCycle(cycleCtx)
		metrics.RecordCycle(time.Since(start), err)
		if err != nil {
			logging.Ctx(cycleCtx).Error().Err(err).Msg("Polling cycle failed")
			return fmt.Errorf("polling cycle failed: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *Poller) String() string {
	return "poller"
}

// RunCycle executes one full fetch, classify, and debounce pass.
func (p *Poller) RunCycle(ctx context.Context) error {
	queryStart := time.Now()
	raw, err := p.source.FetchRecentObservations(ctx, p.opts.Window, p.opts.Beacons)
	metrics.RecordDBQuery("fetch_observations", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to fetch observations: %w", err)
	}
	metrics.ObservationsFetched.Observe(float64(len(raw)))

	groups, labels := p.groupByBeacon(raw)
	metrics.BeaconsPerCycle.Set(float64(len(groups)))

	for beaconID, obs := range groups {
		place, err := p.classifyBeacon(ctx, beaconID, labels[beaconID], obs)
		if err != nil {
			metrics.RecordClassification("", err)
			// A width mismatch means the catalog and model disagree; no
			// beacon can classify until the configuration is fixed.
			if errors.Is(err, classify.ErrDimensionMismatch) {
				return fmt.Errorf("classifier rejected beacon %s: %w", beaconID, err)
			}
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("beacon", beaconID).
				Msg("Skipping beacon this cycle")
			continue
		}
		if err := p.tracker.Observe(ctx, beaconID, place); err != nil {
			return fmt.Errorf("failed to record location for beacon %s: %w", beaconID, err)
		}
	}

	if err := p.tracker.EndCycle(ctx); err != nil {
		return fmt.Errorf("failed to finish cycle: %w", err)
	}
	return nil
}

// groupByBeacon converts raw rows to catalog-relevant observations keyed by
// BLE ID. Readings from detectors outside the catalog are dropped here so
// the power transform never sees a group it has no lambda for.
func (p *Poller) groupByBeacon(raw []database.Observation) (map[string][]window.Observation, map[string]string) {
	groups := make(map[string][]window.Observation)
	labels := make(map[string]string)
	for _, r := range raw {
		if _, ok := p.catalog.Index(r.Place, r.Detector); !ok {
			continue
		}
		groups[r.BleID] = append(groups[r.BleID], window.Observation{
			BeaconLabel: r.Label,
			Place:       r.Place,
			DetectorID:  r.Detector,
			Timestamp:   r.Timestamp,
			Proximity:   r.Proximity,
		})
		labels[r.BleID] = r.Label
	}
	return groups, labels
}

// classifyBeacon folds one beacon's observations into a feature record and
// classifies it, returning the predicted place.
func (p *Poller) classifyBeacon(ctx context.Context, beaconID, label string, obs []window.Observation) (string, error) {
	if p.opts.ProximityCeiling > 0 {
		obs = window.Clamp(obs, p.opts.ProximityCeiling)
	}

	if p.opts.PowerParams != nil {
		transformed, err := window.ApplyPowerTransform(obs, p.opts.PowerParams)
		if err != nil {
			return "", fmt.Errorf("power transform failed: %w", err)
		}
		obs = transformed
	}

	record := p.aggregator.WindowRecord(label, beaconID, obs)

	features := record.Features
	if p.opts.Reducer != nil {
		reduced, err := p.opts.Reducer.Reduce(features)
		if err != nil {
			return "", fmt.Errorf("reduction failed: %w", err)
		}
		features = reduced
	}

	pred, err := p.classifier.Predict(features)
	if err != nil {
		return "", fmt.Errorf("prediction failed: %w", err)
	}
	metrics.RecordClassification(pred.Place, nil)

	logging.Ctx(ctx).Debug().
		Str("beacon", beaconID).
		Str("label", label).
		Str("place", pred.Place).
		Float64("score", pred.Score).
		Msg("Beacon classified")

	return pred.Place, nil
}
