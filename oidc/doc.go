// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is the relying party adapter for a public OIDC client using the
Authorization Code Flow with PKCE (S256).  The implicit flow is never used.

Config holds the client's registration and protocol settings and is
validated on creation:

	cfg, err := oidc.NewConfig(
		"https://idp.example.com",
		"your_client_id",
		"http://127.0.0.1:8250/callback",
		oidc.WithPostLogoutRedirectUrl("http://127.0.0.1:8250/"),
	)

A Provider discovers the issuer's endpoints and owns the pending
authorization Requests (state, nonce and the PKCE verifier/challenge) across
the redirect round-trip.  BeginAuth creates a Request and its authorization
URL, and TakeRequest hands the Request for a callback's state out exactly
once, so an authorization code can never be redeemed twice by this client:

	p, err := oidc.NewProvider(cfg)
	defer p.Done()

	authURL, _, err := p.BeginAuth(ctx)
	// ... navigate the user agent to authURL; later, in the callback:
	r, err := p.TakeRequest(state)
	tk, err := p.Exchange(ctx, r, state, code)

Refresh, UserInfo, EndSessionURL and Revoke cover the rest of the session
lifecycle.  Tokens are typed (AccessToken, IdToken, RefreshToken) and are
redacted when printed or marshaled to JSON.

TestProvider is a local OIDC provider for tests.
*/
package oidc
