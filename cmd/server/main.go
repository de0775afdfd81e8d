// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

// Package main is the entry point for the Aqualoc server.
//
// Aqualoc tracks BLE beacons through a fleet of room-mounted proximity
// detectors and classifies which room each beacon is in. The server polls
// the observation log on a fixed interval, folds recent readings into one
// fixed-width feature record per beacon, runs the record through a trained
// model, and debounces the predictions into a persisted location table.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 (defaults, YAML file, environment)
//  2. Database: DuckDB holding room_log, ble_tag, and beacon_locations
//  3. Model: a feed-forward network or KNN prototype set from JSON files
//  4. Poller: the supervised classification cycle
//  5. HTTP API: read endpoints over locations, detectors, and health
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the poller
// finishes its cycle, the HTTP server drains connections, and the
// database closes last.
//
// # Example Usage
//
//	export DUCKDB_PATH=/data/aqualoc.duckdb
//	export POLL_CATALOG="8-302:0,8-302:1,8-303:0"
//	export MODEL_TYPE=network
//	export MODEL_PATH=/data/model.json
//	./aqualoc
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mizulab/aqualoc/internal/api"
	"github.com/mizulab/aqualoc/internal/config"
	"github.com/mizulab/aqualoc/internal/database"
	"github.com/mizulab/aqualoc/internal/logging"
	"github.com/mizulab/aqualoc/internal/poller"
	"github.com/mizulab/aqualoc/internal/supervisor"
	"github.com/mizulab/aqualoc/internal/tracker"
	"github.com/mizulab/aqualoc/internal/window"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("model_type", cfg.Model.Type).
		Dur("interval", cfg.Poller.Interval).
		Dur("window", cfg.Poller.Window).
		Int("catalog_size", len(cfg.Poller.Catalog)).
		Msg("Starting Aqualoc")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	catalog, err := window.ParseCatalog(cfg.Poller.Catalog)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid detector catalog")
	}

	if len(cfg.Poller.Beacons) > 0 {
		if err := verifyAccounts(context.Background(), db, cfg.Poller.Beacons); err != nil {
			logging.Fatal().Err(err).Msg("Beacon account check failed")
		}
	}

	model, err := buildModel(&cfg.Model, catalog)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load model")
	}

	// Readings pass through Box-Cox before aggregation when lambdas are
	// configured, so the sentinel must be the post-transform one.
	sentinel := cfg.Poller.Sentinel
	if model.powerParams != nil {
		sentinel = window.SentinelBoxCox
		logging.Info().
			Int("groups", len(model.powerParams)).
			Float64("sentinel", sentinel).
			Msg("Power transform enabled")
	}

	aggregator, err := window.NewAggregator(catalog, cfg.Poller.Window, sentinel, cfg.Poller.Weighted)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build aggregator")
	}

	trk := tracker.New(db)

	pol, err := poller.New(db, catalog, aggregator, model.classifier, trk, poller.Options{
		Interval:         cfg.Poller.Interval,
		Window:           cfg.Poller.Window,
		ProximityCeiling: cfg.Poller.ProximityCeiling,
		Beacons:          cfg.Poller.Beacons,
		PowerParams:      model.powerParams,
		Reducer:          model.reducer,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build poller")
	}

	handler := api.NewHandler(db)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPollingService(pol)
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// verifyAccounts checks that every explicitly polled beacon has an active
// registration in ble_tag. Unregistered beacons would be silently dropped
// by the observation query, which reads as a dead beacon.
func verifyAccounts(ctx context.Context, db *database.DB, beacons []string) error {
	accounts, err := db.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	known := make(map[string]database.Account, len(accounts))
	for _, acct := range accounts {
		known[acct.BleID] = acct
	}
	for _, id := range beacons {
		acct, ok := known[id]
		if !ok {
			return fmt.Errorf("beacon %s has no active account", id)
		}
		logging.Debug().
			Str("beacon", id).
			Str("label", acct.Label).
			Msg("Beacon account verified")
	}
	return nil
}
