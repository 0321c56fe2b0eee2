// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "errors"

var (
	// ErrNotReady is returned when the provider has not been initialized.
	// Call Manager.Start first.
	ErrNotReady = errors.New("session manager not ready")

	// ErrStateMismatch is returned when a callback's state doesn't match a
	// pending request.  It may indicate a CSRF attempt or a stale redirect and
	// must not be retried automatically.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrLoginCompletion is returned when the authorization code can't be
	// exchanged for a session.  Codes are single-use, so the user has to log in
	// again.
	ErrLoginCompletion = errors.New("login completion failed")

	// ErrSilentRenew is returned when a renewal attempt fails.
	ErrSilentRenew = errors.New("silent renew failed")

	// ErrSessionExpired is set as the status error when a session reached its
	// hard expiry and couldn't be renewed.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidParameter is returned for missing or invalid arguments.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// errSuperseded is returned when a token arrives after the session it was
// meant for was cleared.
var errSuperseded = errors.New("session cleared while the request was in flight")
