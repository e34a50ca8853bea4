// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/patchbay-live/patchbay/internal/config"
)

// ChiMiddlewareConfig holds CORS and rate limiting settings for the
// gateway router.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int // seconds

	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Health endpoints get a permissive limit so monitoring can poll
	// frequently without tripping the API budget.
	RateLimitHealthRequests int
}

// DefaultChiMiddlewareConfig returns the gateway defaults.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins:      []string{"*"},
		CORSAllowedMethods:      []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders:      []string{"Content-Type", "X-Request-ID"},
		CORSMaxAge:              86400,
		RateLimitRequests:       300,
		RateLimitWindow:         time.Minute,
		RateLimitHealthRequests: 1000,
	}
}

// MiddlewareConfigFromConfig derives middleware settings from the loaded
// application configuration.
func MiddlewareConfigFromConfig(cfg *config.Config) *ChiMiddlewareConfig {
	mw := DefaultChiMiddlewareConfig()
	if cfg == nil {
		return mw
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		mw.CORSAllowedOrigins = cfg.Server.CORSOrigins
	}
	if cfg.Server.RateLimitReqs > 0 {
		mw.RateLimitRequests = cfg.Server.RateLimitReqs
	}
	if cfg.Server.RateLimitWindow > 0 {
		mw.RateLimitWindow = cfg.Server.RateLimitWindow
	}
	return mw
}

// ChiMiddleware bundles the router middleware built from one config.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware builds the middleware set.
func NewChiMiddleware(cfg *ChiMiddlewareConfig) *ChiMiddleware {
	if cfg == nil {
		cfg = DefaultChiMiddlewareConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: cfg.CORSAllowedMethods,
		AllowedHeaders: cfg.CORSAllowedHeaders,
		MaxAge:         cfg.CORSMaxAge,
	})

	return &ChiMiddleware{config: cfg, cors: corsHandler}
}

// CORS returns the CORS middleware. Applied globally so OPTIONS preflight
// requests are handled on every route.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the per-IP rate limiter for API endpoints.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return httprate.LimitByIP(m.config.RateLimitRequests, m.config.RateLimitWindow)
}

// RateLimitHealth returns the permissive limiter for health endpoints.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return httprate.LimitByIP(m.config.RateLimitHealthRequests, m.config.RateLimitWindow)
}
