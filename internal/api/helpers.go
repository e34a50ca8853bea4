// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/patchbay-live/patchbay/internal/engine"
	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/models"
	"github.com/patchbay-live/patchbay/internal/panel"
	"github.com/patchbay-live/patchbay/internal/validation"
)

// sanitizeLogValue removes control characters from strings to prevent log
// injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

// generateETag creates a simple ETag from data using FNV-1a hash
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return strconv.FormatUint(uint64(hash), 16)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("api error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

// validateRequest validates a struct with go-playground/validator and
// translates failures into the VALIDATION_ERROR shape.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// decodeBody decodes a JSON request body into dst. A malformed body is a
// validation failure, answered with 400.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", err)
		return false
	}
	return true
}

// respondStoreError maps the panel store's error taxonomy onto HTTP. An
// engine rejection is 422 with the structured error in the body; the
// affected panel (carrying the same error) is returned alongside so the
// gateway caller sees exactly what every websocket observer sees.
func respondStoreError(w http.ResponseWriter, err error, p *panel.Panel) {
	var engErr *engine.Error
	switch {
	case errors.Is(err, panel.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "panel not found", nil)
	case errors.Is(err, panel.ErrProtectedPanel):
		respondError(w, http.StatusForbidden, "PROTECTED_RESOURCE", "the reserved panel cannot be deleted", nil)
	case errors.Is(err, panel.ErrIDConflict):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "panel id already used in this session", nil)
	case errors.Is(err, panel.ErrCodeTooLarge):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "code exceeds the maximum size", nil)
	case errors.As(err, &engErr):
		details := map[string]interface{}{"panelId": engErr.PanelID}
		if engErr.Line > 0 {
			details["line"] = engErr.Line
			details["column"] = engErr.Column
		}
		respondJSON(w, http.StatusUnprocessableEntity, &models.APIResponse{
			Status:   "error",
			Data:     p,
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error: &models.APIError{
				Code:    "ENGINE_ERROR",
				Message: engErr.Message,
				Details: details,
			},
		})
	default:
		respondError(w, http.StatusInternalServerError, "SERVICE_ERROR", "internal error", err)
	}
}

// contextWithProbeTimeout bounds a readiness probe so a wedged store
// loop fails the probe instead of hanging it.
func contextWithProbeTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 2*time.Second)
}

// respondPanel sends one panel as a success payload.
func respondPanel(w http.ResponseWriter, status int, p *panel.Panel) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     p,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
