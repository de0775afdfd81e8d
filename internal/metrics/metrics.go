// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

// Package metrics exposes Prometheus instrumentation for the polling
// cycle, classification outcomes, persistence writes, and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Polling cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqualoc_cycles_total",
			Help: "Total number of polling cycles by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aqualoc_cycle_duration_seconds",
			Help:    "Duration of full polling cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ObservationsFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aqualoc_observations_fetched",
			Help:    "Number of raw observations fetched per cycle",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BeaconsPerCycle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aqualoc_beacons_per_cycle",
			Help: "Number of distinct beacons seen in the latest cycle",
		},
	)

	// Classification metrics
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqualoc_classifications_total",
			Help: "Total number of classifications by predicted place",
		},
		[]string{"place"},
	)

	ClassificationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqualoc_classification_errors_total",
			Help: "Total number of failed classification attempts",
		},
	)

	// Persistence metrics
	LocationUpserts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqualoc_location_upserts_total",
			Help: "Total number of confirmed location upserts",
		},
	)

	LocationDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqualoc_location_deletes_total",
			Help: "Total number of silent-beacon location deletes",
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordCycle records the outcome and duration of one polling cycle.
func RecordCycle(duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CyclesTotal.WithLabelValues(outcome).Inc()
	CycleDuration.Observe(duration.Seconds())
}

// RecordClassification records one prediction outcome.
func RecordClassification(place string, err error) {
	if err != nil {
		ClassificationErrors.Inc()
		return
	}
	ClassificationsTotal.WithLabelValues(place).Inc()
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
