// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

/*
Package config loads and validates the Aqualoc server configuration.

Configuration is layered with Koanf v2. Later layers override earlier ones:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML config file (CONFIG_PATH or DefaultConfigPaths)
 3. Environment variables

Environment variables map to nested config paths through an explicit table
in envTransformFunc; unknown variables are ignored. Slice-valued settings
(poller.catalog, poller.beacons) accept comma-separated strings from the
environment.

A minimal config file:

	poller:
	  interval: 10s
	  window: 30s
	  catalog:
	    - "8-302:0"
	    - "8-302:1"
	    - "8-303:0"
	model:
	  type: network
	  path: /data/model.json
*/
package config
