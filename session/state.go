// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "github.com/oauthlab/authsession/oidc"

// State is a Manager lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateRestoring
	StateAuthenticated
	StateUnauthenticated
	StateRenewing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRenewing:
		return "renewing"
	case StateLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// Status is the state/loading/error triple UIs bind to.
type Status struct {
	State   State
	Loading bool
	Err     error
}

// EventKind identifies a lifecycle event.
type EventKind int

const (
	// EventUserLoaded: a valid token was obtained or renewed.  Event.Token is
	// required.
	EventUserLoaded EventKind = iota + 1

	// EventUserUnloaded: the user was discarded.
	EventUserUnloaded

	// EventAccessTokenExpired: the session's access token passed its expiry.
	EventAccessTokenExpired

	// EventUserSignedOut: a remote or local sign-out was detected.
	EventUserSignedOut

	// EventSilentRenewError: a background renewal failed.  Event.Err
	// describes why.
	EventSilentRenewError
)

func (k EventKind) String() string {
	switch k {
	case EventUserLoaded:
		return "user-loaded"
	case EventUserUnloaded:
		return "user-unloaded"
	case EventAccessTokenExpired:
		return "access-token-expired"
	case EventUserSignedOut:
		return "user-signed-out"
	case EventSilentRenewError:
		return "silent-renew-error"
	default:
		return "unknown"
	}
}

// Event is delivered to Manager.Notify.
type Event struct {
	Kind  EventKind
	Token oidc.Token
	Err   error
}
