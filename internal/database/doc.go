// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

/*
Package database provides the DuckDB-backed store for BLE observations,
beacon registrations, and classified locations.

Tables:
  - room_log: raw BLE proximity observations (one row per detector sighting)
  - ble_tag: registered beacons and their account labels
  - beacon_locations: the current classified place per beacon

The observation fetch uses a recency predicate anchored at the newest row
rather than wall-clock time, so a paused scanner fleet does not make every
cycle come back empty:

	timestamp > (SELECT MAX(timestamp) FROM room_log) - window

Writes to beacon_locations go through INSERT ... ON CONFLICT so a confirmed
re-classification replaces the previous place in one statement.
*/
package database
