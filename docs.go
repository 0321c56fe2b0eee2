// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// authsession provides a client-side OIDC session: login with the
// authorization code flow and PKCE, a two tier token store, silent renewal,
// role checks and an http transport which injects the access token.
//
// Packages:
//
//   - oidc: provider adapter (discovery, PKCE requests, code exchange,
//     refresh, userinfo, end session, revocation) and a test provider.
//   - oidc/callback: http handlers for the redirect targets.
//   - session: the Manager, which owns the session and its lifecycle.
//   - store: short-lived and durable token tiers over memory, file or
//     redis backends.
//   - authz: role normalization, claim extraction and route guards.
//   - transport: bearer token injection and the 401 policy.
//   - config: environment and dotenv settings.
//   - jwt: key sets for verifying access token signatures.
package authsession
