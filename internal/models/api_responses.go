// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package models defines the shared response envelope used by every
// gateway endpoint.
package models

import (
	"time"
)

// APIResponse is the standardized wrapper for all HTTP endpoints.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "PROTECTED_RESOURCE",
//	    "message": "the reserved panel cannot be deleted"
//	  },
//	  "metadata": {"timestamp": "2026-08-31T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError represents structured error details.
//
// Error codes map onto the core error taxonomy:
//   - VALIDATION_ERROR: input failed field constraints
//   - NOT_FOUND: operation targets an unknown panel id
//   - PROTECTED_RESOURCE: destructive operation on the reserved panel
//   - ENGINE_ERROR: the pattern engine rejected submitted code
//   - SERVICE_ERROR: internal failure
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
