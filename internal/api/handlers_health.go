// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package api

import (
	"net/http"
	"time"

	"github.com/patchbay-live/patchbay/internal/models"
)

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	Uptime           float64 `json:"uptime"`
	RelayConnections int     `json:"relay_connections"`
	PrimaryConnected bool    `json:"primary_connected"`
}

// Health reports overall gateway health. The gateway is healthy as long
// as the store loop is reachable; a missing primary degrades it because
// commands from secondaries are being dropped.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.hub != nil && !h.hub.HasPrimary() {
		status = "degraded"
	}

	health := HealthStatus{
		Status:  status,
		Version: "1.0.0",
		Uptime:  time.Since(h.startTime).Seconds(),
	}
	if h.hub != nil {
		health.RelayConnections = h.hub.ConnCount()
		health.PrimaryConnected = h.hub.HasPrimary()
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     health,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// HealthLive handles liveness probe requests. Returns 200 OK if the
// process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// HealthReady handles readiness probe requests. The gateway is ready once
// the store answers; probe with a short deadline so a wedged store loop
// turns the probe red instead of hanging it.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithProbeTimeout(r)
	defer cancel()

	if _, err := h.store.List(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "panel store unavailable", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     map[string]interface{}{"ready": true},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
