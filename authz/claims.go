// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authz

import (
	"context"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/oauthlab/authsession/jwt"
	"github.com/oauthlab/authsession/oidc"
)

var (
	// DefaultTokenRoleClaims are the access token claims searched for roles.
	DefaultTokenRoleClaims = []string{"roles", "authorities", "role"}

	// DefaultProfileRoleClaims are the identity claims searched for roles.
	DefaultProfileRoleClaims = []string{"role", "roles"}
)

// Roles are the role sets derived from a session.  Token roles come from the
// access token and take precedence; Profile roles come from the identity
// claims.
type Roles struct {
	// TokenDecoded is true when the access token was JWT-shaped and its claims
	// could be read.
	TokenDecoded bool
	Token        []string
	Profile      []string
}

// Has reports whether either role set contains role under n.
func (r Roles) Has(n *Normalizer, role string) bool {
	if n == nil {
		n = NewNormalizer()
	}
	if n.Contains(r.Token, role) {
		return true
	}
	return n.Contains(r.Profile, role)
}

// All returns the token roles followed by any profile roles not already
// present.
func (r Roles) All() []string {
	if len(r.Token) == 0 && len(r.Profile) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Token)+len(r.Profile))
	all := make([]string, 0, len(r.Token)+len(r.Profile))
	for _, set := range [][]string{r.Token, r.Profile} {
		for _, role := range set {
			if _, ok := seen[role]; ok {
				continue
			}
			seen[role] = struct{}{}
			all = append(all, role)
		}
	}
	return all
}

// ClaimsExtractor derives Roles from an access token and identity claims.
// Access tokens are decoded without verification unless a KeySet is
// configured.
type ClaimsExtractor struct {
	tokenRoleClaims   []string
	profileRoleClaims []string
	keySet            jwt.KeySet
	logger            hclog.Logger
}

type extractorOptions struct {
	withTokenRoleClaims   []string
	withProfileRoleClaims []string
	withKeySet            jwt.KeySet
	withLogger            hclog.Logger
}

func extractorDefaults() extractorOptions {
	return extractorOptions{
		withTokenRoleClaims:   DefaultTokenRoleClaims,
		withProfileRoleClaims: DefaultProfileRoleClaims,
		withLogger:            hclog.NewNullLogger(),
	}
}

// NewClaimsExtractor creates a ClaimsExtractor.
//
// Supported options: WithTokenRoleClaims, WithProfileRoleClaims, WithKeySet,
// WithLogger
func NewClaimsExtractor(opt ...Option) *ClaimsExtractor {
	opts := extractorDefaults()
	ApplyOpts(&opts, opt...)
	return &ClaimsExtractor{
		tokenRoleClaims:   opts.withTokenRoleClaims,
		profileRoleClaims: opts.withProfileRoleClaims,
		keySet:            opts.withKeySet,
		logger:            opts.withLogger,
	}
}

// Extract returns the roles found in the access token and identity claims.
// It never fails: an undecodable token simply yields no token roles.
func (e *ClaimsExtractor) Extract(ctx context.Context, accessToken string, claims map[string]interface{}) Roles {
	r := Roles{Profile: e.ProfileRoles(claims)}
	r.Token, r.TokenDecoded = e.TokenRoles(ctx, accessToken)
	return r
}

// TokenRoles decodes the role claims from a JWT-shaped access token.  The bool
// is false for opaque tokens and tokens which can't be decoded or verified.
func (e *ClaimsExtractor) TokenRoles(ctx context.Context, accessToken string) ([]string, bool) {
	const op = "ClaimsExtractor.TokenRoles"
	if !oidc.IsJWT(accessToken) {
		return nil, false
	}
	var claims map[string]interface{}
	switch e.keySet {
	case nil:
		if err := oidc.UnmarshalClaims(accessToken, &claims); err != nil {
			e.logger.Debug(op+": unable to decode access token", "error", err)
			return nil, false
		}
	default:
		var err error
		if claims, err = e.keySet.VerifySignature(ctx, accessToken); err != nil {
			e.logger.Warn(op+": access token signature not verified", "error", err)
			return nil, false
		}
	}
	return firstRoleClaim(claims, e.tokenRoleClaims), true
}

// ProfileRoles returns the roles found in the identity claims.
func (e *ClaimsExtractor) ProfileRoles(claims map[string]interface{}) []string {
	return firstRoleClaim(claims, e.profileRoleClaims)
}

// firstRoleClaim returns the roles of the first named claim that is present.
func firstRoleClaim(claims map[string]interface{}, names []string) []string {
	for _, name := range names {
		v, ok := claims[name]
		if !ok || v == nil {
			continue
		}
		if roles := roleList(v); len(roles) > 0 {
			return roles
		}
	}
	return nil
}

// roleList tolerates a single string, a []string and a decoded JSON array.
func roleList(v interface{}) []string {
	var roles []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			roles = append(roles, s)
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				roles = append(roles, s)
			}
		}
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					roles = append(roles, s)
				}
			}
		}
	}
	return roles
}
