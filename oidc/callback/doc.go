// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package callback provides the http handlers for the redirect targets of the
authorization code flow: Login for the redirect target and SilentRenew for
the silent redirect target.  Both hand the callback's parameters to a
session.Manager.

Example:

	login, _ := callback.Login(m, callback.RedirectSuccess("/"), callback.ErrorPage("/login"))
	silent, _ := callback.SilentRenew(m, callback.NoContentSuccess, callback.ErrorPage(""))
	http.Handle("/callback", login)
	http.Handle("/silent", silent)
*/
package callback
