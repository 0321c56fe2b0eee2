// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// authsession is a command line client for an OIDC session: it logs in with
// the authorization code flow and PKCE, keeps the tokens in the configured
// store, and calls APIs with the current access token.
package main

// version can be set during build with -ldflags
var version = "dev"

func main() {
	Execute(version)
}
