// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Observation is one raw proximity reading from room_log, joined with the
// owning account label from ble_tag.
type Observation struct {
	Label     string  // account label from ble_tag
	BleID     string  // beacon hardware ID
	Place     string  // place the detector is installed in
	Detector  string  // detector ID within the place
	Timestamp int64   // epoch seconds
	Proximity float64 // raw proximity reading
}

// Account is a registered beacon from ble_tag.
type Account struct {
	BleID string
	Label string
	Name  string
}

// FetchRecentObservations returns observations from registered active
// beacons within the recency window. The window anchors at the newest row
// in room_log, not at wall-clock time. An optional beacon filter restricts
// the result to those BLE IDs.
func (db *DB) FetchRecentObservations(ctx context.Context, window time.Duration, beacons []string) ([]Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT r.label, r.ble_id, r.place, r.detector, r.timestamp, r.proxi
		FROM room_log r
		JOIN ble_tag t ON t.ble_id = r.ble_id AND t.active
		WHERE r.timestamp > (SELECT COALESCE(MAX(timestamp), 0) FROM room_log) - ?`
	args := []any{int64(window / time.Second)}

	if len(beacons) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(beacons)), ",")
		query += fmt.Sprintf(" AND r.ble_id IN (%s)", placeholders)
		for _, b := range beacons {
			args = append(args, b)
		}
	}

	query += " ORDER BY r.ble_id, r.timestamp"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer closeWithLog(rows, "observation rows")

	var out []Observation
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(&obs.Label, &obs.BleID, &obs.Place, &obs.Detector, &obs.Timestamp, &obs.Proximity); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate observations: %w", err)
	}

	return out, nil
}

// InsertObservation appends one raw reading to room_log. The server never
// writes observations itself; the detector fleet fills room_log out of
// band, and this is the seam for ingest tooling and test fixtures.
func (db *DB) InsertObservation(ctx context.Context, obs Observation) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO room_log (id, label, ble_id, place, detector, timestamp, proxi)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), obs.Label, obs.BleID, obs.Place, obs.Detector, obs.Timestamp, obs.Proximity)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

// RegisterBeacon upserts a beacon registration in ble_tag. Registration is
// an operator action, not something the server does during a cycle.
func (db *DB) RegisterBeacon(ctx context.Context, acct Account) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO ble_tag (ble_id, label, name, active)
		VALUES (?, ?, ?, true)
		ON CONFLICT (ble_id) DO UPDATE SET
			label = excluded.label,
			name = excluded.name,
			active = true`,
		acct.BleID, acct.Label, acct.Name)
	if err != nil {
		return fmt.Errorf("failed to register beacon %s: %w", acct.BleID, err)
	}
	return nil
}

// ListAccounts returns all active beacon registrations.
func (db *DB) ListAccounts(ctx context.Context) ([]Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT ble_id, label, name
		FROM ble_tag
		WHERE active
		ORDER BY ble_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer closeWithLog(rows, "account rows")

	var out []Account
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.BleID, &acct.Label, &acct.Name); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return out, nil
}
