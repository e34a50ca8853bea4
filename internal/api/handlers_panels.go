// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/patchbay-live/patchbay/internal/models"
	"github.com/patchbay-live/patchbay/internal/panel"
)

// CreatePanelRequest is the POST /panels body.
type CreatePanelRequest struct {
	ID    string `json:"id" validate:"omitempty,max=128"`
	Title string `json:"title" validate:"omitempty,max=256"`
	Code  string `json:"code"`
}

// UpdateCodeRequest is the PUT /panels/{id}/code body.
type UpdateCodeRequest struct {
	Code     string `json:"code"`
	AutoPlay bool   `json:"autoPlay"`
}

// PlaybackRequest is the POST /panels/{id}/playback body.
type PlaybackRequest struct {
	Action string `json:"action" validate:"required,oneof=play pause toggle"`
}

// CreatePanel handles panel creation. The created panel is returned and
// the panel.created broadcast reaches every connected client.
func (h *Handler) CreatePanel(w http.ResponseWriter, r *http.Request) {
	var req CreatePanelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	p, err := h.store.Create(r.Context(), panel.CreateRequest{
		ID:    req.ID,
		Title: req.Title,
		Code:  req.Code,
	})
	if err != nil {
		respondStoreError(w, err, p)
		return
	}
	respondPanel(w, http.StatusCreated, p)
}

// ListPanels returns all panels in display order. The response data is
// structurally identical to a full-state snapshot broadcast.
func (h *Handler) ListPanels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	panels, err := h.store.List(r.Context())
	if err != nil {
		respondStoreError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   panels,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// GetPanel returns one panel by id.
func (h *Handler) GetPanel(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, p)
		return
	}
	respondPanel(w, http.StatusOK, p)
}

// UpdateCode replaces a panel's source text. With autoPlay the panel
// transitions through play/update in the same request; an engine
// rejection comes back as 422 with the panel state attached.
func (h *Handler) UpdateCode(w http.ResponseWriter, r *http.Request) {
	var req UpdateCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.store.UpdateCode(r.Context(), chi.URLParam(r, "id"), req.Code, req.AutoPlay)
	if err != nil {
		respondStoreError(w, err, p)
		return
	}
	respondPanel(w, http.StatusOK, p)
}

// Playback applies a play, pause, or toggle action. All three are
// idempotent against the authoritative state.
func (h *Handler) Playback(w http.ResponseWriter, r *http.Request) {
	var req PlaybackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		p   *panel.Panel
		err error
	)
	switch req.Action {
	case "play":
		p, err = h.store.Play(r.Context(), id)
	case "pause":
		p, err = h.store.Pause(r.Context(), id)
	case "toggle":
		p, err = h.store.Toggle(r.Context(), id)
	}
	if err != nil {
		respondStoreError(w, err, p)
		return
	}
	respondPanel(w, http.StatusOK, p)
}

// DeletePanel removes a panel. The reserved panel answers 403 regardless
// of playback state; a playing panel is paused before removal.
func (h *Handler) DeletePanel(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// StopAll pauses every playing panel and returns the stopped snapshot.
func (h *Handler) StopAll(w http.ResponseWriter, r *http.Request) {
	panels, err := h.store.StopAll(r.Context())
	if err != nil {
		respondStoreError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     panels,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
