// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package session manages a client's OIDC login session: the login round-trip,
the tiered token store, background renewal and the role checks route guards
use.

A Manager owns exactly one Adapter (normally an *oidc.Provider), constructed
lazily by Start and never replaced, and exactly one Session.  Readers get
copies; a renewal swaps the whole Session so a reader sees either the old
token or the new one.

States move Uninitialized → Restoring → Authenticated or Unauthenticated.
Authenticated moves to Renewing and back while a renewal is in flight.
Logout ends in LoggedOut, which becomes Unauthenticated on the next Login.

Example:

	m, _ := session.NewManager(cfg, s, session.WithLogger(logger))
	defer m.Done()
	if err := m.Start(ctx); err != nil {
		// handle err
	}
	_ = m.Login(ctx)

	// in the redirect handler
	sess, err := m.CompleteLogin(ctx, req.FormValue("state"), req.FormValue("code"))
*/
package session
