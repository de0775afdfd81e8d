// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package database

import (
	"context"
	"fmt"
	"time"
)

// BeaconLocation is the current classified place of one beacon.
type BeaconLocation struct {
	BleID     string    `json:"ble_id"`
	Place     string    `json:"place"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Detector is one installed detector known from the observation log.
type Detector struct {
	Place    string `json:"place"`
	Detector string `json:"detector"`
}

// UpsertLocation records a confirmed classification, replacing any
// previous place for the beacon.
func (db *DB) UpsertLocation(ctx context.Context, bleID, place string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO beacon_locations (ble_id, place, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (ble_id) DO UPDATE SET
			place = excluded.place,
			updated_at = excluded.updated_at`,
		bleID, place, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert location for beacon %s: %w", bleID, err)
	}
	return nil
}

// DeleteLocation removes a beacon's classified place. Deleting an absent
// beacon is not an error.
func (db *DB) DeleteLocation(ctx context.Context, bleID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `DELETE FROM beacon_locations WHERE ble_id = ?`, bleID)
	if err != nil {
		return fmt.Errorf("failed to delete location for beacon %s: %w", bleID, err)
	}
	return nil
}

// ListLocations returns every beacon's current classified place.
func (db *DB) ListLocations(ctx context.Context) ([]BeaconLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT ble_id, place, updated_at
		FROM beacon_locations
		ORDER BY ble_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer closeWithLog(rows, "location rows")

	var out []BeaconLocation
	for rows.Next() {
		var loc BeaconLocation
		if err := rows.Scan(&loc.BleID, &loc.Place, &loc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}

	return out, nil
}

// ListDetectors returns the distinct (place, detector) pairs that have
// ever reported an observation.
func (db *DB) ListDetectors(ctx context.Context) ([]Detector, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT place, detector
		FROM room_log
		ORDER BY place, detector`)
	if err != nil {
		return nil, fmt.Errorf("failed to query detectors: %w", err)
	}
	defer closeWithLog(rows, "detector rows")

	var out []Detector
	for rows.Next() {
		var det Detector
		if err := rows.Scan(&det.Place, &det.Detector); err != nil {
			return nil, fmt.Errorf("failed to scan detector: %w", err)
		}
		out = append(out, det)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detectors: %w", err)
	}

	return out, nil
}
