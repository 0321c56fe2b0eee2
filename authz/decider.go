// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authz

import "context"

const (
	// RoleAdmin is the role checked by IsAdmin.
	RoleAdmin = "ADMIN"

	// RoleUser is the role checked by IsUser.
	RoleUser = "USER"
)

// Principal is a read-only view of an authenticated party.
type Principal struct {
	Authenticated bool
	AccessToken   string
	Claims        map[string]interface{}
}

// Decider answers authorization questions about a Principal.  Its methods
// have no side effects and never return errors: an absent role is simply
// false.
type Decider struct {
	normalizer *Normalizer
	extractor  *ClaimsExtractor
}

type deciderOptions struct {
	withNormalizer *Normalizer
	withExtractor  *ClaimsExtractor
}

func deciderDefaults() deciderOptions {
	return deciderOptions{}
}

// NewDecider creates a Decider.
//
// Supported options: WithNormalizer, WithClaimsExtractor
func NewDecider(opt ...Option) *Decider {
	opts := deciderDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withNormalizer == nil {
		opts.withNormalizer = NewNormalizer()
	}
	if opts.withExtractor == nil {
		opts.withExtractor = NewClaimsExtractor()
	}
	return &Decider{
		normalizer: opts.withNormalizer,
		extractor:  opts.withExtractor,
	}
}

// Normalizer returns the decider's Normalizer.
func (d *Decider) Normalizer() *Normalizer { return d.normalizer }

// Extractor returns the decider's ClaimsExtractor.
func (d *Decider) Extractor() *ClaimsExtractor { return d.extractor }

// IsAuthenticated reports whether p is authenticated.
func (d *Decider) IsAuthenticated(p Principal) bool {
	return p.Authenticated && p.AccessToken != ""
}

// HasRole checks the access token roles first, then the identity claim roles.
// An unauthenticated principal has no roles.
func (d *Decider) HasRole(ctx context.Context, p Principal, role string) bool {
	if !d.IsAuthenticated(p) {
		return false
	}
	return d.extractor.Extract(ctx, p.AccessToken, p.Claims).Has(d.normalizer, role)
}

// IsAdmin is HasRole(RoleAdmin).
func (d *Decider) IsAdmin(ctx context.Context, p Principal) bool {
	return d.HasRole(ctx, p, RoleAdmin)
}

// IsUser is HasRole(RoleUser).
func (d *Decider) IsUser(ctx context.Context, p Principal) bool {
	return d.HasRole(ctx, p, RoleUser)
}
