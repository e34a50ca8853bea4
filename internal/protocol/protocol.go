// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

// Package protocol defines the wire envelope shared by every websocket
// participant. The type-tag set is closed: an envelope carrying an unknown
// tag is a protocol error at the boundary that receives it, logged and
// dropped, never forwarded.
package protocol

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/patchbay-live/patchbay/internal/panel"
)

// Type tags for websocket communication.
type Type string

const (
	// TypeClientRegister announces a connection's role to the relay.
	TypeClientRegister Type = "client.register"

	// TypeStateUpdate carries the full panel snapshot, primary to
	// secondaries. With a RequestID it answers one state.request and is
	// relayed only to the requesting connection.
	TypeStateUpdate Type = "state.update"

	// TypeStateRequest asks the primary for a full snapshot on behalf of
	// one newly registered secondary.
	TypeStateRequest Type = "state.request"

	// Playback commands, secondary to primary. Toggle is resolved against
	// the authoritative state, never the sender's assumption.
	TypePanelPlay   Type = "panel.play"
	TypePanelPause  Type = "panel.pause"
	TypePanelToggle Type = "panel.toggle"

	// Lifecycle broadcasts, primary to secondaries.
	TypePanelCreated Type = "panel.created"
	TypePanelUpdated Type = "panel.updated"
	TypePanelDeleted Type = "panel.deleted"

	// TypeGlobalStopAll stops every playing panel. Command direction.
	TypeGlobalStopAll Type = "global.stopAll"
)

// Role of a websocket connection, declared via client.register.
type Role string

const (
	RoleUnknown   Role = "unknown"
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Valid reports whether the role is one a client may register as.
// RoleUnknown is the relay's internal pre-registration state, not a
// registrable role.
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleSecondary
}

// Envelope is the single wire shape. Payload stays raw until the tag is
// known; typed accessors decode it.
type Envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Error is a protocol-level failure: malformed frame, unknown tag, or a
// payload that does not match its tag.
type Error struct {
	Tag    Type
	Reason string
}

func (e *Error) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("protocol error (%s): %s", e.Tag, e.Reason)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// RegisterPayload declares the sender's role.
type RegisterPayload struct {
	Role Role `json:"role"`
}

// StateUpdatePayload is the full-state snapshot: every panel in display
// order, identical in shape to the gateway list response.
type StateUpdatePayload struct {
	Panels []*panel.Panel `json:"panels"`

	// RequestID correlates a targeted snapshot with the state.request
	// that asked for it. Empty for unsolicited full pushes.
	RequestID string `json:"requestId,omitempty"`
}

// StateRequestPayload asks the primary for a snapshot on behalf of one
// connection.
type StateRequestPayload struct {
	RequestID string `json:"requestId"`
}

// CommandPayload addresses one panel by id. Used by panel.play,
// panel.pause and panel.toggle.
type CommandPayload struct {
	PanelID string `json:"panelId"`
}

// PanelPayload carries one panel's full state. Used by panel.created and
// panel.updated.
type PanelPayload struct {
	Panel *panel.Panel `json:"panel"`
}

// DeletedPayload identifies a removed panel.
type DeletedPayload struct {
	PanelID string `json:"panelId"`
}

var knownTypes = map[Type]struct{}{
	TypeClientRegister: {},
	TypeStateUpdate:    {},
	TypeStateRequest:   {},
	TypePanelPlay:      {},
	TypePanelPause:     {},
	TypePanelToggle:    {},
	TypePanelCreated:   {},
	TypePanelUpdated:   {},
	TypePanelDeleted:   {},
	TypeGlobalStopAll:  {},
}

// Decode parses raw frame bytes into an envelope. Unknown tags and
// malformed JSON return *Error; the payload itself is decoded lazily by
// the typed accessors.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &Error{Reason: fmt.Sprintf("malformed frame: %v", err)}
	}
	if env.Type == "" {
		return Envelope{}, &Error{Reason: "missing type tag"}
	}
	if _, ok := knownTypes[env.Type]; !ok {
		return Envelope{}, &Error{Tag: env.Type, Reason: "unknown type tag"}
	}
	return env, nil
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// IsCommand reports whether the tag flows secondary to primary.
func IsCommand(t Type) bool {
	switch t {
	case TypePanelPlay, TypePanelPause, TypePanelToggle, TypeGlobalStopAll:
		return true
	}
	return false
}

// IsBroadcast reports whether the tag flows primary to secondaries.
func IsBroadcast(t Type) bool {
	switch t {
	case TypeStateUpdate, TypePanelCreated, TypePanelUpdated, TypePanelDeleted:
		return true
	}
	return false
}

// decodePayload unmarshals the raw payload for tag t into dst.
func (e Envelope) decodePayload(t Type, dst any) error {
	if e.Type != t {
		return &Error{Tag: e.Type, Reason: fmt.Sprintf("payload requested as %s", t)}
	}
	if len(e.Payload) == 0 {
		return &Error{Tag: t, Reason: "missing payload"}
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return &Error{Tag: t, Reason: fmt.Sprintf("malformed payload: %v", err)}
	}
	return nil
}

// Register decodes a client.register payload.
func (e Envelope) Register() (RegisterPayload, error) {
	var p RegisterPayload
	if err := e.decodePayload(TypeClientRegister, &p); err != nil {
		return p, err
	}
	if !p.Role.Valid() {
		return p, &Error{Tag: TypeClientRegister, Reason: fmt.Sprintf("invalid role %q", p.Role)}
	}
	return p, nil
}

// StateUpdate decodes a state.update payload.
func (e Envelope) StateUpdate() (StateUpdatePayload, error) {
	var p StateUpdatePayload
	err := e.decodePayload(TypeStateUpdate, &p)
	return p, err
}

// StateRequest decodes a state.request payload.
func (e Envelope) StateRequest() (StateRequestPayload, error) {
	var p StateRequestPayload
	err := e.decodePayload(TypeStateRequest, &p)
	return p, err
}

// Command decodes a panel.play/pause/toggle payload.
func (e Envelope) Command() (CommandPayload, error) {
	var p CommandPayload
	if e.Type != TypePanelPlay && e.Type != TypePanelPause && e.Type != TypePanelToggle {
		return p, &Error{Tag: e.Type, Reason: "not a panel command"}
	}
	if len(e.Payload) == 0 {
		return p, &Error{Tag: e.Type, Reason: "missing payload"}
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, &Error{Tag: e.Type, Reason: fmt.Sprintf("malformed payload: %v", err)}
	}
	if p.PanelID == "" {
		return p, &Error{Tag: e.Type, Reason: "missing panelId"}
	}
	return p, nil
}

// PanelState decodes a panel.created/updated payload.
func (e Envelope) PanelState() (PanelPayload, error) {
	var p PanelPayload
	if e.Type != TypePanelCreated && e.Type != TypePanelUpdated {
		return p, &Error{Tag: e.Type, Reason: "not a panel state broadcast"}
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, &Error{Tag: e.Type, Reason: fmt.Sprintf("malformed payload: %v", err)}
	}
	if p.Panel == nil {
		return p, &Error{Tag: e.Type, Reason: "missing panel"}
	}
	return p, nil
}

// Deleted decodes a panel.deleted payload.
func (e Envelope) Deleted() (DeletedPayload, error) {
	var p DeletedPayload
	if err := e.decodePayload(TypePanelDeleted, &p); err != nil {
		return p, err
	}
	if p.PanelID == "" {
		return p, &Error{Tag: TypePanelDeleted, Reason: "missing panelId"}
	}
	return p, nil
}

// stamp returns the current UTC time in the wire format.
func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// newEnvelope marshals payload under tag t with a fresh timestamp.
func newEnvelope(t Type, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payload structs are plain data; marshal cannot fail for them.
		panic(fmt.Sprintf("protocol: marshal %s payload: %v", t, err))
	}
	return Envelope{Type: t, Payload: raw, Timestamp: stamp()}
}

// NewRegister builds a client.register envelope.
func NewRegister(role Role) Envelope {
	return newEnvelope(TypeClientRegister, RegisterPayload{Role: role})
}

// NewStateUpdate builds a full-state broadcast. requestID is empty for
// unsolicited pushes.
func NewStateUpdate(panels []*panel.Panel, requestID string) Envelope {
	return newEnvelope(TypeStateUpdate, StateUpdatePayload{Panels: panels, RequestID: requestID})
}

// NewStateRequest builds a snapshot request for one connection.
func NewStateRequest(requestID string) Envelope {
	return newEnvelope(TypeStateRequest, StateRequestPayload{RequestID: requestID})
}

// NewCommand builds a playback command envelope. t must be one of
// panel.play, panel.pause, panel.toggle.
func NewCommand(t Type, panelID string) Envelope {
	return newEnvelope(t, CommandPayload{PanelID: panelID})
}

// NewPanelState builds a panel.created or panel.updated broadcast.
func NewPanelState(t Type, p *panel.Panel) Envelope {
	return newEnvelope(t, PanelPayload{Panel: p})
}

// NewDeleted builds a panel.deleted broadcast.
func NewDeleted(panelID string) Envelope {
	return newEnvelope(TypePanelDeleted, DeletedPayload{PanelID: panelID})
}

// NewStopAll builds a global.stopAll command.
func NewStopAll() Envelope {
	return Envelope{Type: TypeGlobalStopAll, Timestamp: stamp()}
}
