// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package panel

import "errors"

// Sentinel errors for store operations. The gateway maps these onto the
// HTTP error taxonomy; the relay path logs and ignores them.
var (
	// ErrNotFound indicates the operation targets an unknown panel id.
	ErrNotFound = errors.New("panel not found")

	// ErrProtectedPanel indicates a destructive operation on the reserved
	// panel. Distinct from ErrNotFound so callers can return 403, not 404.
	ErrProtectedPanel = errors.New("the reserved panel cannot be deleted")

	// ErrIDConflict indicates a caller-supplied id that is in use or was
	// already used earlier this session. Ids are never reused.
	ErrIDConflict = errors.New("panel id already used this session")

	// ErrCodeTooLarge indicates the pattern source exceeds the configured
	// maximum size.
	ErrCodeTooLarge = errors.New("pattern code exceeds maximum size")

	// ErrStoreStopped indicates the store's command loop is not running.
	ErrStoreStopped = errors.New("panel store is not running")
)
