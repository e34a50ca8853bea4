// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package config provides layered configuration loading for Patchbay using
// Koanf v2. Precedence, highest wins: environment variables > YAML config
// file > built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the Patchbay server and clients.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Relay   RelayConfig   `koanf:"relay"`
	Engine  EngineConfig  `koanf:"engine"`
	Client  ClientConfig  `koanf:"client"`
	Panel   PanelConfig   `koanf:"panel"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string `koanf:"host"`

	// Port is the HTTP listen port. Default: 9173
	Port int `koanf:"port"`

	// Timeout is the per-request read/write timeout.
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed CORS origins. Default: ["*"]
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the request budget per RateLimitWindow per client IP.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate limit accounting window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// RelayConfig holds websocket relay settings.
type RelayConfig struct {
	// SendBuffer is the per-connection outbound message buffer.
	SendBuffer int `koanf:"send_buffer"`

	// MaxMessageSize is the maximum inbound frame size in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`
}

// EngineConfig points at the external pattern-evaluation engine.
type EngineConfig struct {
	// URL is the engine's evaluate endpoint base URL.
	URL string `koanf:"url"`

	// Timeout bounds a single evaluate or silence call.
	Timeout time.Duration `koanf:"timeout"`
}

// ClientConfig holds settings for primary/remote relay sessions.
type ClientConfig struct {
	// RelayURL is the websocket URL of the relay (ws://host:port/api/v1/ws).
	RelayURL string `koanf:"relay_url"`

	// ReconnectBackoff is the constant delay between reconnect attempts.
	// The control link is LAN-style; backoff stays constant, not exponential.
	ReconnectBackoff time.Duration `koanf:"reconnect_backoff"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

// PanelConfig holds panel model settings.
type PanelConfig struct {
	// ReservedTitle is the title of the non-deletable global panel.
	ReservedTitle string `koanf:"reserved_title"`

	// MaxCodeSize is the maximum accepted pattern source size in bytes.
	MaxCodeSize int `koanf:"max_code_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9173,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Relay: RelayConfig{
			SendBuffer:     256,
			MaxMessageSize: 512 * 1024, // 512 KB
		},
		Engine: EngineConfig{
			URL:     "http://127.0.0.1:9174",
			Timeout: 10 * time.Second,
		},
		Client: ClientConfig{
			RelayURL:         "ws://127.0.0.1:9173/api/v1/ws",
			ReconnectBackoff: 2 * time.Second,
			HandshakeTimeout: 5 * time.Second,
		},
		Panel: PanelConfig{
			ReservedTitle: "global",
			MaxCodeSize:   64 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validatePanel(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.RateLimitReqs < 1 {
		return fmt.Errorf("SERVER_RATE_LIMIT_REQS must be at least 1, got %d", c.Server.RateLimitReqs)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.URL == "" {
		return fmt.Errorf("ENGINE_URL is required")
	}
	u, err := url.Parse(c.Engine.URL)
	if err != nil {
		return fmt.Errorf("ENGINE_URL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ENGINE_URL must use http or https, got %q", u.Scheme)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT must be positive, got %s", c.Engine.Timeout)
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.RelayURL == "" {
		return fmt.Errorf("CLIENT_RELAY_URL is required")
	}
	u, err := url.Parse(c.Client.RelayURL)
	if err != nil {
		return fmt.Errorf("CLIENT_RELAY_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("CLIENT_RELAY_URL must use ws or wss, got %q", u.Scheme)
	}
	if c.Client.ReconnectBackoff <= 0 {
		return fmt.Errorf("CLIENT_RECONNECT_BACKOFF must be positive, got %s", c.Client.ReconnectBackoff)
	}
	return nil
}

func (c *Config) validatePanel() error {
	if strings.TrimSpace(c.Panel.ReservedTitle) == "" {
		return fmt.Errorf("PANEL_RESERVED_TITLE must not be empty")
	}
	if c.Panel.MaxCodeSize < 1 {
		return fmt.Errorf("PANEL_MAX_CODE_SIZE must be at least 1, got %d", c.Panel.MaxCodeSize)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOGGING_LEVEL must be a valid level, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOGGING_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
