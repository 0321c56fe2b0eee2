// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Provider provides integration with a provider using the authorization code
// flow with PKCE.  It owns the pending authorization requests across the
// redirect round-trip.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	client   *http.Client
	pending  *RequestCache

	// endSessionURL and revocationURL are taken from the config or, when not
	// configured, from the provider's discovery document.
	endSessionURL string
	revocationURL string

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs ket sets, refreshing tokens, etc
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// discoveryExtras are the discovery claims go-oidc doesn't surface itself.
type discoveryExtras struct {
	EndSessionEndpoint string `json:"end_session_endpoint"`
	RevocationEndpoint string `json:"revocation_endpoint"`
}

// NewProvider creates and initializes a Provider.  Intializing the provider,
// includes making an http request to the provider's issuer.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		pending:             NewRequestCache(),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HttpClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	provider, err := oidc.NewProvider(HttpClientContext(p.backgroundCtx, client), c.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.provider = provider

	var extras discoveryExtras
	if err := provider.Claims(&extras); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to read discovery document: %w", op, err)
	}
	switch {
	case c.EndSessionUrl != "":
		p.endSessionURL = c.EndSessionUrl
	case extras.EndSessionEndpoint != "":
		p.endSessionURL = extras.EndSessionEndpoint
	default:
		p.endSessionURL = strings.TrimSuffix(c.Issuer, "/") + "/logout"
	}
	switch {
	case c.RevocationUrl != "":
		p.revocationURL = c.RevocationUrl
	default:
		p.revocationURL = extras.RevocationEndpoint
	}
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's configuration.
func (p *Provider) Config() *Config { return p.config }

// BeginAuth creates a new pending Request, records it and returns the
// authorization URL the user agent must navigate to.  WithSilent creates a
// prompt=none request which is sent to the silent redirect URL.
//
// Supported options: WithSilent, WithNow
func (p *Provider) BeginAuth(ctx context.Context, opt ...Option) (string, Request, error) {
	const op = "Provider.BeginAuth"
	opts := getReqOpts(opt...)
	redirect := p.config.RedirectUrl
	if opts.withSilent {
		redirect = p.config.SilentRedirect()
	}
	if opts.withNowFunc == nil {
		opt = append(opt, WithNow(p.config.NowFunc))
	}
	r, err := NewRequest(p.config.RequestExpiry, redirect, opt...)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err := p.AuthURL(ctx, r)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := p.pending.Add(r); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, r, nil
}

// TakeRequest removes and returns the pending Request for the state.  A
// state can only be taken once.
func (p *Provider) TakeRequest(state string) (Request, error) {
	const op = "Provider.TakeRequest"
	r, err := p.pending.Take(state)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with PKCE.  The Request's redirect URL is the URL
// the IdP should use as a redirect after the authentication/authorization is
// completed by the user.
func (p *Provider) AuthURL(ctx context.Context, r Request) (string, error) {
	const op = "Provider.AuthURL"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == r.Nonce() {
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if r.PKCEVerifier() == "" {
		return "", fmt.Errorf("%s: request PKCE verifier is empty: %w", op, ErrInvalidParameter)
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(r.Nonce()),
		oauth2.S256ChallengeOption(r.PKCEVerifier()),
	}
	if r.Silent() {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", "none"))
	}
	return p.oauth2Config(r.RedirectURL()).AuthCodeURL(r.State(), authCodeOpts...), nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.  The Request's PKCE verifier is
// sent with the code.
//
// It will also validate the authorizationState it receives against the
// existing Request for the user's oidc authentication flow.
//
// On success, the Token returned will include IdToken and AccessToken.  Based
// on the IdP, it may include a RefreshToken.
func (p *Provider) Exchange(ctx context.Context, r Request, authorizationState string, authorizationCode string) (*Tk, error) {
	const op = "Provider.Exchange"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() != authorizationState {
		return nil, fmt.Errorf("%s: authentication state and authorization state are not equal: %w", op, ErrInvalidResponseState)
	}
	if r.IsExpired() {
		return nil, fmt.Errorf("%s: authentication request is expired: %w", op, ErrExpiredRequest)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	oauth2Token, err := p.oauth2Config(r.RedirectURL()).Exchange(
		HttpClientContext(ctx, p.client),
		authorizationCode,
		oauth2.VerifierOption(r.PKCEVerifier()),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, err)
	}

	idToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIdToken)
	}
	t, err := NewToken(IdToken(idToken), oauth2Token, WithNow(p.config.NowFunc))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new token: %w", op, err)
	}
	if err := p.VerifyIdToken(ctx, t.IdToken(), r.Nonce()); err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	return t, nil
}

// Refresh uses the refresh_token grant to obtain a new token.  An id_token in
// the response is optional, but when present it's verified.  When the
// provider doesn't rotate the refresh_token, the one provided is retained.
func (p *Provider) Refresh(ctx context.Context, rt RefreshToken) (*Tk, error) {
	const op = "Provider.Refresh"
	if rt == "" {
		return nil, fmt.Errorf("%s: refresh_token is empty: %w", op, ErrMissingRefreshToken)
	}
	ts := p.oauth2Config(p.config.RedirectUrl).TokenSource(
		HttpClientContext(ctx, p.client),
		&oauth2.Token{RefreshToken: string(rt)},
	)
	oauth2Token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to refresh token with provider: %w", op, err)
	}
	idToken, _ := oauth2Token.Extra("id_token").(string)
	t, err := NewToken(IdToken(idToken), oauth2Token, WithNow(p.config.NowFunc))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new token: %w", op, err)
	}
	if idToken != "" {
		if err := p.verifyIdToken(ctx, t.IdToken(), ""); err != nil {
			return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
		}
	}
	return t, nil
}

// UserInfo gets the UserInfo claims from the provider using the token produced
// by the tokenSource.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	userinfo, err := p.provider.UserInfo(HttpClientContext(ctx, p.client), tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed (%s): %w", op, err, ErrUserInfoFailed)
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims (%s): %w", op, err, ErrUserInfoFailed)
	}
	return nil
}

// VerifyIdToken will verify the inbound IdToken.  It verifies it's been signed
// by the provider, it validates the nonce, and performs checks any additional
// checks depending on the provider's config (audiences, etc).
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIdToken(ctx context.Context, t IdToken, nonce string) error {
	const op = "Provider.VerifyIdToken"
	if nonce == "" {
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	return p.verifyIdToken(ctx, t, nonce)
}

// verifyIdToken skips the nonce check when nonce is empty, which is only
// valid for id_tokens returned by a refresh_token grant.
func (p *Provider) verifyIdToken(ctx context.Context, t IdToken, nonce string) error {
	const op = "Provider.verifyIdToken"
	if t == "" {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	oidcConfig := &oidc.Config{
		SupportedSigningAlgs: algs,
		ClientID:             p.config.ClientId,
		Now:                  p.config.Now,
	}
	if len(p.config.Audiences) > 0 {
		oidcConfig.SkipClientIDCheck = true
	}
	verifier := p.provider.Verifier(oidcConfig)

	oidcIdToken, err := verifier.Verify(HttpClientContext(ctx, p.client), string(t))
	if err != nil {
		return fmt.Errorf("%s: invalid id_token (%s): %w", op, err, ErrIdTokenVerificationFailed)
	}
	if nonce != "" && oidcIdToken.Nonce != nonce {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	if len(p.config.Audiences) > 0 {
		found := false
		for _, v := range p.config.Audiences {
			if strListContains(oidcIdToken.Audience, v) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
		}
	}
	return nil
}

// EndSessionURL returns the URL for the provider's end session endpoint
// carrying the post logout redirect and the optional id_token hint.
func (p *Provider) EndSessionURL(idTokenHint IdToken) (string, error) {
	const op = "Provider.EndSessionURL"
	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		return "", fmt.Errorf("%s: end session URL is invalid: %w", op, ErrInvalidParameter)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientId)
	if p.config.PostLogoutRedirectUrl != "" {
		q.Set("post_logout_redirect_uri", p.config.PostLogoutRedirectUrl)
	}
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Revoke asks the provider to revoke the access token.  A configured
// RevocationUrl receives a JSON {"token": ...} body authenticated with the
// token itself; a discovered revocation_endpoint receives an RFC 7009 form.
// It's a no-op when neither is available.
func (p *Provider) Revoke(ctx context.Context, t AccessToken) error {
	const op = "Provider.Revoke"
	if t == "" {
		return fmt.Errorf("%s: access_token is empty: %w", op, ErrMissingAccessToken)
	}
	if p.revocationURL == "" {
		return nil
	}
	var req *http.Request
	var err error
	switch {
	case p.config.RevocationUrl != "":
		body, jsonErr := json.Marshal(map[string]string{"token": string(t)})
		if jsonErr != nil {
			return fmt.Errorf("%s: unable to encode revocation request: %w", op, jsonErr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%s: unable to create revocation request: %w", op, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+string(t))
	default:
		form := url.Values{
			"token":           {string(t)},
			"token_type_hint": {"access_token"},
			"client_id":       {p.config.ClientId},
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("%s: unable to create revocation request: %w", op, err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if p.config.ClientSecret != "" {
			req.SetBasicAuth(url.QueryEscape(p.config.ClientId), url.QueryEscape(string(p.config.ClientSecret)))
		}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: revocation request failed (%s): %w", op, err, ErrRevocationFailed)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: revocation returned %d: %w", op, resp.StatusCode, ErrRevocationFailed)
	}
	return nil
}

func (p *Provider) oauth2Config(redirectURL string) *oauth2.Config {
	endpoint := p.provider.Endpoint()
	if p.config.ClientSecret == "" {
		// public clients identify themselves with the client_id parameter
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     p.config.ClientId,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  redirectURL,
		Endpoint:     endpoint,
		Scopes:       p.config.Scopes,
	}
}

func strListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}
