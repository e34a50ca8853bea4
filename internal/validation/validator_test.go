// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package validation

import (
	"strings"
	"testing"
)

type playbackRequest struct {
	Action string `validate:"required,oneof=play pause toggle"`
}

type createRequest struct {
	Title string `validate:"required,min=1,max=200"`
	Code  string `validate:"max=65536"`
}

func TestValidateStructPass(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
	}{
		{"playback play", &playbackRequest{Action: "play"}},
		{"playback toggle", &playbackRequest{Action: "toggle"}},
		{"create minimal", &createRequest{Title: "drums"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.in); err != nil {
				t.Errorf("expected valid, got %v", err)
			}
		})
	}
}

func TestValidateStructFail(t *testing.T) {
	tests := []struct {
		name      string
		in        interface{}
		wantField string
	}{
		{"missing action", &playbackRequest{}, "Action"},
		{"bad action", &playbackRequest{Action: "restart"}, "Action"},
		{"missing title", &createRequest{}, "Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.in)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if len(err.Errors()) == 0 {
				t.Fatal("expected at least one field error")
			}
			if got := err.Errors()[0].Field(); got != tt.wantField {
				t.Errorf("failed field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestToAPIErrorSingle(t *testing.T) {
	err := ValidateStruct(&playbackRequest{Action: "restart"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "one of") {
		t.Errorf("message %q should mention allowed values", apiErr.Message)
	}
	if apiErr.Details["field"] != "Action" {
		t.Errorf("details field = %v, want Action", apiErr.Details["field"])
	}
}

func TestToAPIErrorMultiple(t *testing.T) {
	type multi struct {
		A string `validate:"required"`
		B string `validate:"required"`
	}

	err := ValidateStruct(&multi{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(err.Errors()))
	}

	apiErr := err.ToAPIError()
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("multiple errors should include fields detail")
	}
	if !strings.Contains(apiErr.Message, ";") {
		t.Errorf("combined message should join errors: %q", apiErr.Message)
	}
}

func TestTranslateMinMaxStrings(t *testing.T) {
	err := ValidateStruct(&createRequest{Title: strings.Repeat("x", 300)})
	if err == nil {
		t.Fatal("expected validation error for oversized title")
	}
	if !strings.Contains(err.Error(), "at most 200 characters") {
		t.Errorf("message = %q, want character-count phrasing", err.Error())
	}
}
