// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Aqualoc server.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Poller   PollerConfig   `koanf:"poller"`
	Model    ModelConfig    `koanf:"model"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig controls the DuckDB connection.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// PollerConfig controls the classification cycle.
type PollerConfig struct {
	// Interval is the pause between polling cycles.
	Interval time.Duration `koanf:"interval"`
	// Window is the observation recency window per cycle. Rows older than
	// MAX(timestamp) - Window are ignored.
	Window time.Duration `koanf:"window"`
	// Catalog lists the known place:detector pairs, e.g. "8-302:0".
	Catalog []string `koanf:"catalog"`
	// Sentinel fills feature columns with no readings in the window.
	Sentinel float64 `koanf:"sentinel"`
	// ProximityCeiling clamps raw readings; 0 disables clamping.
	ProximityCeiling float64 `koanf:"proximity_ceiling"`
	// Weighted selects recency-weighted means over simple means.
	Weighted bool `koanf:"weighted"`
	// Beacons restricts polling to these BLE IDs; empty polls all
	// registered beacons.
	Beacons []string `koanf:"beacons"`
}

// ModelConfig selects and locates the classification model files.
type ModelConfig struct {
	// Type is "network" or "knn".
	Type string `koanf:"type"`
	// Path locates the model file (network JSON or KNN prototype JSON).
	Path string `koanf:"path"`
	// PowerParamsPath locates fitted Box-Cox lambdas; empty disables the
	// power transform.
	PowerParamsPath string `koanf:"power_params_path"`
	// ReducerPath locates a fitted dimensionality reducer; empty feeds
	// window features to the model directly.
	ReducerPath string `koanf:"reducer_path"`
	// KNNNeighbors is the vote size for the knn model type.
	KNNNeighbors int `koanf:"knn_neighbors"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validatePoller(); err != nil {
		return err
	}
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database threads must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validatePoller() error {
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poller.Interval)
	}
	if c.Poller.Window <= 0 {
		return fmt.Errorf("POLL_WINDOW must be positive, got %s", c.Poller.Window)
	}
	if len(c.Poller.Catalog) == 0 {
		return fmt.Errorf("POLL_CATALOG must list at least one place:detector pair")
	}
	if c.Poller.Sentinel <= 0 {
		return fmt.Errorf("POLL_SENTINEL must be positive, got %g", c.Poller.Sentinel)
	}
	if c.Poller.ProximityCeiling < 0 {
		return fmt.Errorf("POLL_PROXIMITY_CEILING must be >= 0, got %g", c.Poller.ProximityCeiling)
	}
	return nil
}

func (c *Config) validateModel() error {
	switch c.Model.Type {
	case "network", "knn":
	default:
		return fmt.Errorf("MODEL_TYPE must be \"network\" or \"knn\", got %q", c.Model.Type)
	}
	if c.Model.Path == "" {
		return fmt.Errorf("MODEL_PATH must not be empty")
	}
	if c.Model.Type == "knn" && c.Model.KNNNeighbors <= 0 {
		return fmt.Errorf("MODEL_KNN_NEIGHBORS must be positive, got %d", c.Model.KNNNeighbors)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace/debug/info/warn/error/fatal, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	return nil
}
