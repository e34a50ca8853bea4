// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patchbay-live/patchbay/internal/middleware"
)

// Router wires handlers and middleware into the chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all gateway routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/panels", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		r.Post("/", router.handler.CreatePanel)
		r.Get("/", router.handler.ListPanels)
		r.Post("/stop", router.handler.StopAll)
		r.Get("/{id}", router.handler.GetPanel)
		r.Put("/{id}/code", router.handler.UpdateCode)
		r.Post("/{id}/playback", router.handler.Playback)
		r.Delete("/{id}", router.handler.DeletePanel)
	})

	// The websocket upgrade stays outside the metrics middleware: the
	// wrapped response writer does not support hijacking.
	r.Get("/api/v1/ws", router.handler.WebSocket)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
