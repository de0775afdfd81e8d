// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/mizulab/aqualoc/internal/database"
	"github.com/mizulab/aqualoc/internal/logging"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata carries response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
}

// Health reports service and database liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil

	status := "healthy"
	code := http.StatusOK
	if !dbConnected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, &APIResponse{
		Status:   "success",
		Data:     HealthStatus{Status: status, Database: dbConnected},
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// Locations returns every beacon's current classified place.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.store.ListLocations(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list locations")
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to list locations")
		return
	}
	if locs == nil {
		locs = []database.BeaconLocation{}
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     locs,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// Detectors returns the distinct (place, detector) pairs known from the
// observation log.
func (h *Handler) Detectors(w http.ResponseWriter, r *http.Request) {
	dets, err := h.store.ListDetectors(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list detectors")
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to list detectors")
		return
	}
	if dets == nil {
		dets = []database.Detector{}
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     dets,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError sends a structured error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &APIResponse{
		Status:   "error",
		Error:    &APIError{Code: code, Message: message},
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}
