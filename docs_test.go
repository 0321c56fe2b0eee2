// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authsession_test

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/oauthlab/authsession/authz"
	"github.com/oauthlab/authsession/oidc"
	"github.com/oauthlab/authsession/oidc/callback"
	"github.com/oauthlab/authsession/session"
	"github.com/oauthlab/authsession/store"
	"github.com/oauthlab/authsession/transport"
)

func Example_session() {
	ctx := context.Background()

	// Create a new Config
	c, err := oidc.NewConfig(
		"https://your-issuer.com/",
		"your_client_id",
		"http://127.0.0.1:8250/callback",
		oidc.WithSilentRedirectUrl("http://127.0.0.1:8250/silent"),
		oidc.WithPostLogoutRedirectUrl("http://127.0.0.1:8250/"),
	)
	if err != nil {
		// handle error
	}

	// Tokens are kept in memory; see store.NewFileBackend and
	// store.NewRedisBackend for backends which survive restarts.
	s, err := store.New(store.NewMemoryBackend(), store.NewMemoryBackend())
	if err != nil {
		// handle error
	}

	m, err := session.NewManager(c, s)
	if err != nil {
		// handle error
	}
	defer m.Done()

	// Start discovers the provider and restores a stored session.
	if err := m.Start(ctx); err != nil {
		// handle error
	}

	// The redirect targets hand the callbacks to the manager.
	login, err := callback.Login(m, callback.RedirectSuccess("/"), callback.ErrorPage("/login"))
	if err != nil {
		// handle error
	}
	silent, err := callback.SilentRenew(m, callback.NoContentSuccess, callback.ErrorPage(""))
	if err != nil {
		// handle error
	}
	http.Handle("/callback", login)
	http.Handle("/silent", silent)

	// Only admins may see /admin.
	principal := func(*http.Request) authz.Principal { return m.Principal() }
	http.Handle("/admin", authz.RequireRole(principal, authz.RoleAdmin, http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("hello admin"))
		},
	)))

	// Open the browser at the authorization endpoint.
	if err := m.Login(ctx); err != nil {
		// handle error
	}

	// Once logged in, call APIs with the access token.
	client, err := transport.NewClient(m)
	if err != nil {
		// handle error
	}
	resp, err := client.Get("https://api.example.com/things")
	if err != nil {
		// handle error
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))

	// Logout clears the session and ends it at the provider.
	if err := m.Logout(ctx); err != nil {
		// handle error
	}
}

func Example_authz() {
	n := authz.NewNormalizer()
	fmt.Println(n.Equal("ROLE_ADMIN", "admin"))
	fmt.Println(n.Contains([]string{"ROLE_USER"}, "ADMIN"))

	d := authz.NewDecider()
	p := authz.Principal{
		Authenticated: true,
		AccessToken:   "opaque",
		Claims:        map[string]interface{}{"role": "ADMIN"},
	}
	fmt.Println(d.IsAdmin(context.Background(), p))
	// Output:
	// true
	// false
	// true
}
