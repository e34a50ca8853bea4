// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package metrics provides Prometheus instrumentation for Patchbay:
// gateway request latency and throughput, relay connection and routing
// counters, and pattern-engine submission outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
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
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Relay Metrics
	RelayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Current number of relay connections by role",
		},
		[]string{"role"},
	)

	RelayCommandsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_commands_routed_total",
			Help: "Total number of command messages routed to the primary",
		},
		[]string{"type"},
	)

	RelayCommandsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_commands_dropped_total",
			Help: "Total number of commands dropped because no primary was connected",
		},
	)

	RelayBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Total number of state broadcasts fanned out to secondaries",
		},
		[]string{"type"},
	)

	RelayProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_protocol_errors_total",
			Help: "Total number of malformed or unknown envelopes dropped at the relay",
		},
		[]string{"reason"},
	)

	RelaySnapshotRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_snapshot_requests_total",
			Help: "Total number of full-state snapshot requests relayed to the primary",
		},
	)

	// Pattern Engine Metrics
	EngineSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_submissions_total",
			Help: "Total number of pattern engine submissions by outcome",
		},
		[]string{"outcome"}, // "success", "rejected", "transport_error"
	)

	EngineSubmissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_submission_duration_seconds",
			Help:    "Pattern engine evaluate call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Panel Model Metrics
	PanelsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "panels_total",
			Help: "Current number of panels in the authoritative model",
		},
	)

	PanelsPlaying = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "panels_playing",
			Help: "Current number of playing panels",
		},
	)

	CascadeReevaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cascade_reevaluations_total",
			Help: "Total number of dependent panels re-submitted by cascades",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEngineSubmission records a pattern engine submission outcome.
func RecordEngineSubmission(outcome string, duration time.Duration) {
	EngineSubmissions.WithLabelValues(outcome).Inc()
	EngineSubmissionDuration.Observe(duration.Seconds())
}
