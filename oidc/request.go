// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Request represents a pending authorization request across the redirect
// round-trip.  It carries the anti-CSRF state, the replay nonce and the PKCE
// verifier/challenge pair.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain
	// request between the oidc request and the callback. It must be
	// unique per request and must not be guessable.
	State() string

	// Nonce is a unique value used to associate a client session with an
	// id_token and to mitigate replay attacks.
	Nonce() string

	// IsExpired returns true if the request has expired.
	IsExpired() bool

	// RedirectURL is where the provider sends the authorization response.
	RedirectURL() string

	// PKCEVerifier is the code verifier sent with the token exchange.
	PKCEVerifier() string

	// PKCEChallenge is the S256 challenge derived from the verifier.
	PKCEChallenge() string

	// Silent is true for prompt=none renewal requests.
	Silent() bool
}

// Req represents the oidc request used for the authorization code flow with
// PKCE.  It implements the Request interface.
type Req struct {
	state       string
	nonce       string
	expiration  time.Time
	redirectURL string
	verifier    string
	silent      bool

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// ensure that Req implements the Request interface.
var _ Request = (*Req)(nil)

// NewRequest creates a new Request.  The state, nonce and PKCE verifier are
// randomly generated.
//
// Supported options: WithNow, WithSilent
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Req, error) {
	const op = "NewRequest"
	opts := getReqOpts(opt...)
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if expireIn == 0 {
		return nil, fmt.Errorf("%s: expireIn is zero: %w", op, ErrInvalidParameter)
	}
	nonce, err := NewID("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	state, err := NewID("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	r := &Req{
		state:       state,
		nonce:       nonce,
		redirectURL: redirectURL,
		verifier:    oauth2.GenerateVerifier(),
		silent:      opts.withSilent,
		nowFunc:     opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// Nonce implements the Request.Nonce() interface function.
func (r *Req) Nonce() string { return r.nonce }

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// PKCEVerifier implements the Request.PKCEVerifier() interface function.
func (r *Req) PKCEVerifier() string { return r.verifier }

// PKCEChallenge implements the Request.PKCEChallenge() interface function.
func (r *Req) PKCEChallenge() string { return oauth2.S256ChallengeFromVerifier(r.verifier) }

// Silent implements the Request.Silent() interface function.
func (r *Req) Silent() bool { return r.silent }

// IsExpired returns true if the request has expired. Implements the
// Request.IsExpired() interface function.
func (r *Req) IsExpired() bool {
	return !r.expiration.After(r.now())
}

// now returns the current time using the optional nowFunc.
func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now()
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withNowFunc func() time.Time
	withSilent  bool
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSilent marks the request as a prompt=none renewal request.
//
// Valid for: Req
func WithSilent() Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withSilent = true
		}
	}
}
