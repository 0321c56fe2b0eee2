// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	sdkHttp "github.com/oauthlab/authsession/sdk/http"
)

const (
	// ResponseTypeCode is the only response type supported: the authorization
	// code flow.  The implicit flow is never used.
	ResponseTypeCode = "code"

	// CodeChallengeS256 is the only PKCE code challenge method supported.
	CodeChallengeS256 = "S256"

	// DefaultSilentRequestTimeout is how long a silent renewal may run before
	// it's abandoned.
	DefaultSilentRequestTimeout = 30 * time.Second

	// DefaultRenewLeadTime is how far ahead of the access token's expiry a
	// background renewal is attempted.
	DefaultRenewLeadTime = 60 * time.Second

	// DefaultRequestExpiry is how long a pending authorization request may
	// wait for its callback.
	DefaultRequestExpiry = 10 * time.Minute
)

// DefaultScopes are requested when no scopes are configured.
var DefaultScopes = []string{oidc.ScopeOpenID, "profile", "email", "api.read", "api.write"}

// ClientSecret is an oauth client secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for a public OIDC client using the
// authorization code flow with PKCE.
type Config struct {
	// ClientId is the relying party id
	ClientId string

	// ClientSecret is an optional relying party secret.  Public clients
	// (the usual case for PKCE) leave it empty.
	ClientSecret ClientSecret

	// Scopes is the list of scopes requested.  The "openid" scope is always
	// requested.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.  It's the authority used for
	// discovery.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms for
	// id_tokens.
	SupportedSigningAlgs []Alg

	// RedirectUrl receives the authorization code callback.
	RedirectUrl string

	// SilentRedirectUrl receives silent (prompt=none) renewal callbacks.  If
	// empty, RedirectUrl is used.
	SilentRedirectUrl string

	// PostLogoutRedirectUrl is sent to the end session endpoint.
	PostLogoutRedirectUrl string

	// ResponseType must be "code".
	ResponseType string

	// CodeChallengeMethod must be "S256".
	CodeChallengeMethod string

	// AutomaticSilentRenew enables background renewal ahead of expiry.
	AutomaticSilentRenew bool

	// SilentRequestTimeout bounds a single renewal attempt.
	SilentRequestTimeout time.Duration

	// RenewLeadTime is how far ahead of expiry renewal is attempted.
	RenewLeadTime time.Duration

	// RequestExpiry is the lifetime of a pending authorization request.
	RequestExpiry time.Duration

	// RevocationUrl is an optional endpoint which accepts a POSTed access
	// token for revocation.  If empty, the provider's discovered
	// revocation_endpoint is used (if any).
	RevocationUrl string

	// EndSessionUrl optionally overrides the discovered end_session_endpoint.
	EndSessionUrl string

	// LoadUserInfo will merge the userinfo endpoint claims into the session's
	// identity claims.
	LoadUserInfo bool

	// ValidateSubOnSilentRenew requires a renewed id_token's subject to match
	// the current session's subject.
	ValidateSubOnSilentRenew bool

	// Audiences is a list optional case-sensitive strings used when verifying
	// an id_token's "aud" claim
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time
}

// NewConfig composes a new config for a provider.  Defaults: scopes "openid
// profile email api.read api.write", RS256 signing, automatic silent renew
// enabled, a 30s silent request timeout and a 60s renew lead time.
//
// Supported options:
//   - WithClientSecret
//   - WithScopes
//   - WithAudiences
//   - WithProviderCA
//   - WithSupportedSigningAlgs
//   - WithSilentRedirectUrl
//   - WithPostLogoutRedirectUrl
//   - WithAutomaticSilentRenew
//   - WithSilentRequestTimeout
//   - WithRenewLeadTime
//   - WithRequestExpiry
//   - WithRevocationUrl
//   - WithEndSessionUrl
//   - WithLoadUserInfo
//   - WithValidateSubOnSilentRenew
//   - WithResponseType
//   - WithCodeChallengeMethod
//   - WithNow
func NewConfig(issuer string, clientId string, redirectUrl string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:                   issuer,
		ClientId:                 clientId,
		ClientSecret:             opts.withClientSecret,
		RedirectUrl:              redirectUrl,
		SilentRedirectUrl:        opts.withSilentRedirectUrl,
		PostLogoutRedirectUrl:    opts.withPostLogoutRedirectUrl,
		Scopes:                   withOpenID(opts.withScopes),
		SupportedSigningAlgs:     opts.withSupportedSigningAlgs,
		ResponseType:             opts.withResponseType,
		CodeChallengeMethod:      opts.withCodeChallengeMethod,
		AutomaticSilentRenew:     opts.withAutomaticSilentRenew,
		SilentRequestTimeout:     opts.withSilentRequestTimeout,
		RenewLeadTime:            opts.withRenewLeadTime,
		RequestExpiry:            opts.withRequestExpiry,
		RevocationUrl:            opts.withRevocationUrl,
		EndSessionUrl:            opts.withEndSessionUrl,
		LoadUserInfo:             opts.withLoadUserInfo,
		ValidateSubOnSilentRenew: opts.withValidateSubOnSilentRenew,
		Audiences:                opts.withAudiences,
		ProviderCA:               opts.withProviderCA,
		NowFunc:                  opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable via
// an http request.  SupportedSigningAlgs is validated against the list of
// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512, PS256,
// PS384, PS512, EdDSA
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientId == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter)
	}
	if c.RedirectUrl == "" {
		return fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("%s: issuer %s is invalid (%s): %w", op, c.Issuer, err, ErrInvalidIssuer)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%s: issuer %s schema is not http or https: %w", op, c.Issuer, ErrInvalidIssuer)
	}
	for _, r := range []string{c.RedirectUrl, c.SilentRedirectUrl, c.PostLogoutRedirectUrl, c.RevocationUrl, c.EndSessionUrl} {
		if r == "" {
			continue
		}
		if _, err := url.Parse(r); err != nil {
			return fmt.Errorf("%s: URL %q is invalid: %w", op, r, ErrInvalidParameter)
		}
	}
	if c.ResponseType != ResponseTypeCode {
		return fmt.Errorf("%s: response type %q is not %q: %w", op, c.ResponseType, ResponseTypeCode, ErrUnsupportedResponseType)
	}
	if c.CodeChallengeMethod != CodeChallengeS256 {
		return fmt.Errorf("%s: code challenge method %q is not %q: %w", op, c.CodeChallengeMethod, CodeChallengeS256, ErrUnsupportedChallenge)
	}
	if len(c.SupportedSigningAlgs) == 0 {
		return fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter)
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			return fmt.Errorf("%s: unsupported algorithm %s: %w", op, a, ErrUnsupportedAlg)
		}
	}
	if c.SilentRequestTimeout <= 0 {
		return fmt.Errorf("%s: silent request timeout must be greater than zero: %w", op, ErrInvalidParameter)
	}
	if c.RenewLeadTime < 0 {
		return fmt.Errorf("%s: renew lead time is negative: %w", op, ErrInvalidParameter)
	}
	if c.RequestExpiry <= 0 {
		return fmt.Errorf("%s: request expiry must be greater than zero: %w", op, ErrInvalidParameter)
	}
	if c.ProviderCA != "" {
		if _, err := c.HttpClient(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// SilentRedirect returns the URL which receives silent renewal callbacks.
func (c *Config) SilentRedirect() string {
	if c.SilentRedirectUrl != "" {
		return c.SilentRedirectUrl
	}
	return c.RedirectUrl
}

// Now returns the current time using the optional NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// HttpClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	client, err := sdkHttp.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// HttpClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HttpClientContext(ctx context.Context, client *http.Client) context.Context {
	return sdkHttp.OidcClientContext(ctx, client)
}

// ParseScopes splits a space delimited scope string.
func ParseScopes(s string) []string {
	return strings.Fields(s)
}

func withOpenID(scopes []string) []string {
	out := make([]string, 0, len(scopes)+1)
	out = append(out, oidc.ScopeOpenID)
	seen := map[string]bool{oidc.ScopeOpenID: true}
	for _, s := range scopes {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// configOptions is the set of available options
type configOptions struct {
	withClientSecret             ClientSecret
	withScopes                   []string
	withAudiences                []string
	withProviderCA               string
	withSupportedSigningAlgs     []Alg
	withSilentRedirectUrl        string
	withPostLogoutRedirectUrl    string
	withResponseType             string
	withCodeChallengeMethod      string
	withAutomaticSilentRenew     bool
	withSilentRequestTimeout     time.Duration
	withRenewLeadTime            time.Duration
	withRequestExpiry            time.Duration
	withRevocationUrl            string
	withEndSessionUrl            string
	withLoadUserInfo             bool
	withValidateSubOnSilentRenew bool
	withNowFunc                  func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withScopes:                   DefaultScopes,
		withSupportedSigningAlgs:     []Alg{RS256},
		withResponseType:             ResponseTypeCode,
		withCodeChallengeMethod:      CodeChallengeS256,
		withAutomaticSilentRenew:     true,
		withSilentRequestTimeout:     DefaultSilentRequestTimeout,
		withRenewLeadTime:            DefaultRenewLeadTime,
		withRequestExpiry:            DefaultRequestExpiry,
		withValidateSubOnSilentRenew: true,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithClientSecret provides an optional client secret for confidential
// clients.
func WithClientSecret(secret ClientSecret) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientSecret = secret
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithSupportedSigningAlgs overrides the default RS256 id_token signing alg.
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithSilentRedirectUrl provides the silent renewal callback URL.
func WithSilentRedirectUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSilentRedirectUrl = u
		}
	}
}

// WithPostLogoutRedirectUrl provides the URL the provider returns to after
// ending its session.
func WithPostLogoutRedirectUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPostLogoutRedirectUrl = u
		}
	}
}

// WithResponseType overrides the response type.  Only "code" passes
// validation.
func WithResponseType(rt string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withResponseType = rt
		}
	}
}

// WithCodeChallengeMethod overrides the PKCE method.  Only "S256" passes
// validation.
func WithCodeChallengeMethod(m string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCodeChallengeMethod = m
		}
	}
}

// WithAutomaticSilentRenew enables or disables background renewal.
func WithAutomaticSilentRenew(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAutomaticSilentRenew = enabled
		}
	}
}

// WithSilentRequestTimeout bounds each renewal attempt.
func WithSilentRequestTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSilentRequestTimeout = d
		}
	}
}

// WithRenewLeadTime sets how far ahead of expiry renewal starts.
func WithRenewLeadTime(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRenewLeadTime = d
		}
	}
}

// WithRequestExpiry sets the lifetime of pending authorization requests.
func WithRequestExpiry(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRequestExpiry = d
		}
	}
}

// WithRevocationUrl provides the token revocation endpoint.
func WithRevocationUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRevocationUrl = u
		}
	}
}

// WithEndSessionUrl overrides the discovered end session endpoint.
func WithEndSessionUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEndSessionUrl = u
		}
	}
}

// WithLoadUserInfo merges userinfo claims into the identity claims.
func WithLoadUserInfo(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLoadUserInfo = enabled
		}
	}
}

// WithValidateSubOnSilentRenew requires the subject to remain the same
// across renewals.
func WithValidateSubOnSilentRenew(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withValidateSubOnSilentRenew = enabled
		}
	}
}
