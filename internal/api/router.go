// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

// Package api provides the HTTP read surface over classified locations
// using the Chi router.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mizulab/aqualoc/internal/database"
)

// Store is the data access surface the API reads from.
type Store interface {
	Ping(ctx context.Context) error
	ListLocations(ctx context.Context) ([]database.BeaconLocation, error)
	ListDetectors(ctx context.Context) ([]database.Detector, error)
}

// Handler serves the API endpoints.
type Handler struct {
	store Store
}

// NewHandler creates an API handler over the given store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes builds the full HTTP handler with middleware and all routes.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(prometheusMetrics)
		r.Get("/health", h.Health)
		r.Get("/locations", h.Locations)
		r.Get("/detectors", h.Detectors)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
