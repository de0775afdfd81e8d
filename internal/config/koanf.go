// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/aqualoc/config.yaml",
	"/etc/aqualoc/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/aqualoc.duckdb",
			MaxMemory:              "1GB",
			Threads:                0, // 0 = runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Poller: PollerConfig{
			Interval:         10 * time.Second,
			Window:           30 * time.Second,
			Catalog:          nil,
			Sentinel:         300.0,
			ProximityCeiling: 100.0,
			Weighted:         false,
			Beacons:          nil,
		},
		Model: ModelConfig{
			Type:            "network",
			Path:            "/data/model.json",
			PowerParamsPath: "",
			ReducerPath:     "",
			KNNNeighbors:    5,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8217,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as strings from environment variables.
var sliceConfigPaths = []string{
	"poller.catalog",
	"poller.beacons",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - DUCKDB_PATH -> database.path
//   - POLL_INTERVAL -> poller.interval
//   - MODEL_PATH -> model.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Database mappings
		"duckdb_path":               "database.path",
		"duckdb_max_memory":         "database.max_memory",
		"duckdb_threads":            "database.threads",
		"duckdb_preserve_insertion": "database.preserve_insertion_order",

		// Poller mappings
		"poll_interval":          "poller.interval",
		"poll_window":            "poller.window",
		"poll_catalog":           "poller.catalog",
		"poll_sentinel":          "poller.sentinel",
		"poll_proximity_ceiling": "poller.proximity_ceiling",
		"poll_weighted":          "poller.weighted",
		"poll_beacons":           "poller.beacons",

		// Model mappings
		"model_type":          "model.type",
		"model_path":          "model.path",
		"model_power_params":  "model.power_params_path",
		"model_reducer_path":  "model.reducer_path",
		"model_knn_neighbors": "model.knn_neighbors",

		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are dropped rather than guessed at, so unrelated
	// environment noise cannot override config keys.
	return ""
}
