// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"time"

	"github.com/oauthlab/authsession/authz"
	"github.com/oauthlab/authsession/oidc"
)

// DefaultSessionLifetime is used when the provider doesn't report an access
// token expiry.
const DefaultSessionLifetime = time.Hour

// Session is a read-only snapshot of an authenticated session.  The Manager
// never hands out the Session it owns: every accessor returns a copy, and a
// renewal replaces the whole Session.
type Session struct {
	Subject     string
	Username    string
	Email       string
	DisplayName string

	AccessToken oidc.AccessToken
	IdToken     oidc.IdToken
	Expiry      time.Time
	CanRefresh  bool
	Scopes      []string

	// Roles lists the access token roles followed by the identity claim
	// roles.
	Roles []string

	// Claims are the identity claims (id_token merged with userinfo).
	Claims map[string]interface{}

	roles   authz.Roles
	margin  time.Duration
	nowFunc func() time.Time
}

// Expired reports whether the access token has expired, after applying the
// safety margin.
func (s *Session) Expired() bool {
	if s == nil {
		return true
	}
	return !s.Expiry.After(s.now().Add(s.margin))
}

// Valid reports whether the session can be used.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && !s.Expired()
}

func (s *Session) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Scopes = cloneStrings(s.Scopes)
	c.Roles = cloneStrings(s.Roles)
	c.roles = authz.Roles{
		TokenDecoded: s.roles.TokenDecoded,
		Token:        cloneStrings(s.roles.Token),
		Profile:      cloneStrings(s.roles.Profile),
	}
	if s.Claims != nil {
		c.Claims = make(map[string]interface{}, len(s.Claims))
		for k, v := range s.Claims {
			c.Claims[k] = v
		}
	}
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func claimString(claims map[string]interface{}, names ...string) string {
	for _, n := range names {
		if v, ok := claims[n].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
