// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/patchbay-live/patchbay/internal/metrics"
)

// HTTPEngine talks to a pattern engine over HTTP.
//
// Protocol:
//   - POST {base}/eval with an EvalRequest body.
//     200 -> EvalResult; 422 -> Error (structured rejection).
//   - POST {base}/silence with {"patternId": ...}.
//     200 -> silenced (silencing an unknown pattern is a no-op upstream).
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEngine creates an engine client for the given base URL.
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Evaluate submits code and decodes the engine's verdict.
func (e *HTTPEngine) Evaluate(ctx context.Context, req EvalRequest) (*EvalResult, error) {
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode eval request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/eval", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build eval request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		metrics.RecordEngineSubmission("transport_error", time.Since(start))
		return nil, fmt.Errorf("engine unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.RecordEngineSubmission("transport_error", time.Since(start))
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var result EvalResult
		if err := json.Unmarshal(respBody, &result); err != nil {
			metrics.RecordEngineSubmission("transport_error", time.Since(start))
			return nil, fmt.Errorf("failed to decode eval result: %w", err)
		}
		if result.PatternID == "" {
			result.PatternID = req.PanelID
		}
		metrics.RecordEngineSubmission("success", time.Since(start))
		return &result, nil

	case http.StatusUnprocessableEntity:
		var engineErr Error
		if err := json.Unmarshal(respBody, &engineErr); err != nil {
			engineErr = Error{PanelID: req.PanelID, Message: string(respBody)}
		}
		if engineErr.PanelID == "" {
			engineErr.PanelID = req.PanelID
		}
		metrics.RecordEngineSubmission("rejected", time.Since(start))
		return nil, &engineErr

	default:
		metrics.RecordEngineSubmission("transport_error", time.Since(start))
		return nil, fmt.Errorf("engine returned unexpected status %d", resp.StatusCode)
	}
}

// Silence stops playback for the given bound pattern identifier.
func (e *HTTPEngine) Silence(ctx context.Context, patternID string) error {
	body, err := json.Marshal(map[string]string{"patternId": patternID})
	if err != nil {
		return fmt.Errorf("failed to encode silence request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/silence", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build silence request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("engine unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine returned unexpected status %d for silence", resp.StatusCode)
	}
	return nil
}
