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

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		// Raw proximity observations. One row per detector sighting of a
		// beacon; timestamp is epoch seconds from the detector clock.
		`CREATE TABLE IF NOT EXISTS room_log (
			id UUID PRIMARY KEY,
			label TEXT NOT NULL,
			ble_id TEXT NOT NULL,
			place TEXT NOT NULL,
			detector TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			proxi DOUBLE NOT NULL,
			batt DOUBLE
		)`,

		// Registered beacons. Only active rows participate in polling.
		`CREATE TABLE IF NOT EXISTS ble_tag (
			ble_id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			name TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true
		)`,

		// Current classified place per beacon, maintained by the tracker.
		`CREATE TABLE IF NOT EXISTS beacon_locations (
			ble_id TEXT PRIMARY KEY,
			place TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// createIndexes creates indexes for the polling query patterns.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		// The recency fetch filters by timestamp and groups by beacon.
		`CREATE INDEX IF NOT EXISTS idx_room_log_timestamp ON room_log (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_room_log_ble_id ON room_log (ble_id, timestamp)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}
