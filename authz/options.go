// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authz

import (
	"github.com/hashicorp/go-hclog"
	"github.com/oauthlab/authsession/jwt"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithPrefix overrides the role prefix stripped by a Normalizer.  An empty
// prefix disables stripping.
//
// Valid for: Normalizer
func WithPrefix(p string) Option {
	return func(o interface{}) {
		if v, ok := o.(*normalizerOptions); ok {
			v.withPrefix = p
		}
	}
}

// WithCaseInsensitive controls whether a Normalizer folds case.
//
// Valid for: Normalizer
func WithCaseInsensitive(b bool) Option {
	return func(o interface{}) {
		if v, ok := o.(*normalizerOptions); ok {
			v.withCaseInsensitive = b
		}
	}
}

// WithTokenRoleClaims overrides the access token claims searched for roles.
//
// Valid for: ClaimsExtractor
func WithTokenRoleClaims(claims ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*extractorOptions); ok && len(claims) > 0 {
			v.withTokenRoleClaims = claims
		}
	}
}

// WithProfileRoleClaims overrides the identity claims searched for roles.
//
// Valid for: ClaimsExtractor
func WithProfileRoleClaims(claims ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*extractorOptions); ok && len(claims) > 0 {
			v.withProfileRoleClaims = claims
		}
	}
}

// WithKeySet makes a ClaimsExtractor verify access token signatures before
// trusting their roles.  Tokens that fail verification are treated like opaque
// tokens.
//
// Valid for: ClaimsExtractor
func WithKeySet(ks jwt.KeySet) Option {
	return func(o interface{}) {
		if v, ok := o.(*extractorOptions); ok && ks != nil {
			v.withKeySet = ks
		}
	}
}

// WithLogger provides an optional logger.
//
// Valid for: ClaimsExtractor
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*extractorOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithNormalizer overrides the Normalizer used by a Decider.
//
// Valid for: Decider
func WithNormalizer(n *Normalizer) Option {
	return func(o interface{}) {
		if v, ok := o.(*deciderOptions); ok && n != nil {
			v.withNormalizer = n
		}
	}
}

// WithClaimsExtractor overrides the ClaimsExtractor used by a Decider.
//
// Valid for: Decider
func WithClaimsExtractor(e *ClaimsExtractor) Option {
	return func(o interface{}) {
		if v, ok := o.(*deciderOptions); ok && e != nil {
			v.withExtractor = e
		}
	}
}
