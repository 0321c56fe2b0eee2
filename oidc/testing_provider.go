// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const testKeyID = "test-signing-key"

// TestProvider is local server that supports test provider capabilities which
// make writing tests much easier.  It implements discovery, an authorization
// endpoint enforcing PKCE S256, a token endpoint supporting the
// authorization_code (single use codes) and refresh_token grants, userinfo,
// a JWKS, token revocation and end session endpoints.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	customClaims        map[string]interface{}
	accessTokenClaims   map[string]interface{}
	customAudience      string
	omitIDToken         bool
	omitRefreshIDToken  bool
	omitRefreshToken    bool
	disableUserInfo     bool
	opaqueAccessTokens  bool
	loginRequired       bool
	refreshFailure      bool
	accessTokenExpiry   time.Duration
	revocationStatus    int
	revocationDelay     time.Duration
	codes               map[string]testAuthCode
	refreshTokens       map[string]string
	tokenRequests       int
	revoked             []string

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// testAuthCode is an issued, not yet redeemed, authorization code.
type testAuthCode struct {
	redirectURI string
	challenge   string
	nonce       string
	scope       string
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider which is stopped when
// the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		allowedRedirectURIs: []string{
			"https://example.com",
		},
		replySubject: "alice@example.com",
		replyUserinfo: map[string]interface{}{
			"email":       "alice@example.com",
			"given_name":  "Alice",
			"family_name": "Doe",
		},
		accessTokenExpiry: time.Hour,
		revocationStatus:  http.StatusOK,
		codes:             map[string]testAuthCode{},
		refreshTokens:     map[string]string{},
		t:                 t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)

	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.  An empty secret configures a public client.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured a sample of "https://example.com" is
// used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the subject of issued tokens.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetCustomClaims lets you set claims to return in the id_token issued by
// the OIDC workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetAccessTokenClaims lets you set claims to return in JWT access tokens.
func (p *TestProvider) SetAccessTokenClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenClaims = claims
}

// SetUserInfoReply sets the claims returned by the userinfo endpoint.
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetCustomAudience configures what audience value to embed in the id_token
// issued by the OIDC workflow.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetAccessTokenExpiry configures the expires_in of issued access tokens.
func (p *TestProvider) SetAccessTokenExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenExpiry = d
}

// SetOpaqueAccessTokens makes the token endpoint issue random, non-JWT
// access tokens.
func (p *TestProvider) SetOpaqueAccessTokens(opaque bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opaqueAccessTokens = opaque
}

// SetLoginRequired makes prompt=none authorization requests fail with
// login_required.
func (p *TestProvider) SetLoginRequired(required bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginRequired = required
}

// SetRefreshFailure makes the refresh_token grant fail with invalid_grant.
func (p *TestProvider) SetRefreshFailure(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshFailure = fail
}

// SetRevocationStatus sets the status code returned by the revocation
// endpoint.
func (p *TestProvider) SetRevocationStatus(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revocationStatus = code
}

// SetRevocationDelay delays revocation responses.
func (p *TestProvider) SetRevocationDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revocationDelay = d
}

// OmitIDTokens forces an error state where the /token endpoint does not return
// id_token for the authorization_code grant.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshIDTokens makes refresh_token grant responses omit the id_token.
func (p *TestProvider) OmitRefreshIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshIDToken = true
}

// OmitRefreshTokens makes token responses omit the refresh_token.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from the
// discovery config.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs
// and the signing alg.
func (p *TestProvider) SigningKeys() (pub, priv string, alg Alg) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey, ES256
}

// HTTPClient returns an http.Client for the test provider which trusts its
// CA.
func (p *TestProvider) HTTPClient() *http.Client {
	return p.httpServer.Client()
}

// TokenRequestCount returns the number of requests received by the token
// endpoint.
func (p *TestProvider) TokenRequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// RevokedTokens returns the tokens received by the revocation endpoint.
func (p *TestProvider) RevokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// Authorize requests the authURL from the test provider and returns the
// redirect it answers with, which carries the code and state (or error)
// parameters.
func (p *TestProvider) Authorize(authURL string) (*url.URL, error) {
	client := *p.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Get(authURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("unexpected authorize status: %d", resp.StatusCode)
	}
	return resp.Location()
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == "/revoke" {
		// revocation may be delayed, so it can't hold the lock while it waits
		p.handleRevoke(w, req)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			TokenEndpoint      string   `json:"token_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			UserinfoEndpoint   string   `json:"userinfo_endpoint,omitempty"`
			EndSessionEndpoint string   `json:"end_session_endpoint"`
			RevocationEndpoint string   `json:"revocation_endpoint"`
			Algs               []string `json:"id_token_signing_alg_values_supported"`
			ChallengeMethods   []string `json:"code_challenge_methods_supported"`
		}{
			Issuer:             p.Addr(),
			AuthEndpoint:       p.Addr() + "/authorize",
			TokenEndpoint:      p.Addr() + "/token",
			JWKSURI:            p.Addr() + "/.well-known/jwks.json",
			UserinfoEndpoint:   p.Addr() + "/userinfo",
			EndSessionEndpoint: p.Addr() + "/logout",
			RevocationEndpoint: p.Addr() + "/revoke",
			Algs:               []string{string(ES256)},
			ChallengeMethods:   []string{CodeChallengeS256},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}

		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" || !strListContains(p.allowedRedirectURIs, redirectURI) {
			// never redirect to an unknown redirect_uri
			w.WriteHeader(http.StatusBadRequest)
			_ = p.writeJSON(w, map[string]string{"error": "invalid_request", "error_description": "redirect_uri is not allowed"})
			return
		}
		state := qv.Get("state")
		switch {
		case qv.Get("response_type") != ResponseTypeCode:
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		case !strListContains(strings.Fields(qv.Get("scope")), "openid"):
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		case state == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		case qv.Get("code_challenge_method") != CodeChallengeS256 || qv.Get("code_challenge") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "PKCE S256 code challenge required")
			return
		case qv.Get("prompt") == "none" && p.loginRequired:
			p.writeAuthErrorResponse(w, req, "login_required", "")
			return
		}

		code, err := NewID("code")
		if err != nil {
			p.writeAuthErrorResponse(w, req, "server_error", err.Error())
			return
		}
		p.codes[code] = testAuthCode{
			redirectURI: redirectURI,
			challenge:   qv.Get("code_challenge"),
			nonce:       qv.Get("nonce"),
			scope:       qv.Get("scope"),
		}

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(code)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/.well-known/jwks.json":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := p.writeJSON(w, p.jwks); err != nil {
			return
		}

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenRequests++
		p.handleToken(w, req)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.replySubject}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		if err := p.writeJSON(w, reply); err != nil {
			return
		}

	case "/logout":
		if r := req.URL.Query().Get("post_logout_redirect_uri"); r != "" {
			http.Redirect(w, req, r, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleToken must be called with p.mu held.
func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	clientID, clientSecret, ok := req.BasicAuth()
	if !ok {
		clientID = req.FormValue("client_id")
		clientSecret = req.FormValue("client_secret")
	}
	if clientID != p.clientID || clientSecret != p.clientSecret {
		_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}

	var nonce, scope string
	var refreshGrant bool
	switch req.FormValue("grant_type") {
	case "authorization_code":
		code := req.FormValue("code")
		issued, ok := p.codes[code]
		if !ok {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		}
		// codes are single use, even when the redemption fails
		delete(p.codes, code)
		switch {
		case req.FormValue("redirect_uri") != issued.redirectURI:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
			return
		case testS256(req.FormValue("code_verifier")) != issued.challenge:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
		nonce, scope = issued.nonce, issued.scope
	case "refresh_token":
		granted, ok := p.refreshTokens[req.FormValue("refresh_token")]
		if p.refreshFailure || !ok {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "invalid refresh_token")
			return
		}
		scope, refreshGrant = granted, true
	default:
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
		return
	}

	now := time.Now()
	stdClaims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Addr(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(p.accessTokenExpiry)),
		Audience:  jwt.Audience{p.clientID},
	}
	if p.customAudience != "" {
		stdClaims.Audience = jwt.Audience{p.customAudience}
	}
	idClaims := map[string]interface{}{}
	for k, v := range p.customClaims {
		idClaims[k] = v
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	idToken, err := signJWT(p.ecdsaPrivateKey, testKeyID, stdClaims, idClaims)
	if err != nil {
		_ = p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	var accessToken string
	switch {
	case p.opaqueAccessTokens:
		accessToken, err = NewID("at")
	default:
		atClaims := map[string]interface{}{"jti": fmt.Sprintf("at-%d", p.tokenRequests)}
		for k, v := range p.accessTokenClaims {
			atClaims[k] = v
		}
		accessToken, err = signJWT(p.ecdsaPrivateKey, testKeyID, stdClaims, atClaims)
	}
	if err != nil {
		_ = p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	reply := struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope,omitempty"`
		RefreshToken string `json:"refresh_token,omitempty"`
		IDToken      string `json:"id_token,omitempty"`
	}{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(p.accessTokenExpiry / time.Second),
		Scope:       scope,
		IDToken:     idToken,
	}
	if !p.omitRefreshToken && !refreshGrant {
		rt, err := NewID("rt")
		if err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		p.refreshTokens[rt] = scope
		reply.RefreshToken = rt
	}
	switch {
	case refreshGrant && p.omitRefreshIDToken:
		reply.IDToken = ""
	case !refreshGrant && p.omitIDToken:
		reply.IDToken = ""
	}
	if err := p.writeJSON(w, &reply); err != nil {
		return
	}
}

func (p *TestProvider) handleRevoke(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	delay, status := p.revocationDelay, p.revocationStatus
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return
		}
	}

	var token string
	switch {
	case strings.HasPrefix(req.Header.Get("Content-Type"), "application/json"):
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		token = body.Token
	default:
		token = req.FormValue("token")
	}

	p.mu.Lock()
	p.revoked = append(p.revoked, token)
	p.mu.Unlock()
	w.WriteHeader(status)
}

func testS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	input := block.Bytes

	pub, err := x509.ParsePKIXPublicKey(input)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     testKeyID,
				Algorithm: string(ES256),
				Use:       "sig",
			},
		},
	}
}
