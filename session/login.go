// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"

	"github.com/oauthlab/authsession/oidc"
	"github.com/oauthlab/authsession/store"
)

// Login starts an authorization code flow: it creates a pending request (state,
// nonce and PKCE verifier), marks the manager loading and navigates to the
// authorization endpoint.  The flow resumes in CompleteLogin.
func (m *Manager) Login(ctx context.Context) error {
	const op = "Manager.Login"
	u, err := m.LoginURL(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := m.navigator.Navigate(ctx, u); err != nil {
		err = fmt.Errorf("%s: unable to navigate to authorization endpoint: %w", op, err)
		m.setLoading(false, err)
		return err
	}
	return nil
}

// LoginURL is Login without the navigation.  It returns the authorization URL
// the user agent must be sent to.
func (m *Manager) LoginURL(ctx context.Context) (string, error) {
	const op = "Manager.LoginURL"
	p, err := m.readyProvider()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, _, err := p.BeginAuth(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: unable to begin authorization: %w", op, err)
	}
	m.setLoading(true, nil)
	return u, nil
}

// CompleteLogin finishes the flow started by Login, using the state and code
// from the redirect.  It waits for the provider (bounded by ctx), takes the
// pending request for state, exchanges the code with its PKCE verifier and
// verifies the id_token nonce.  A state is only honored once, so a replayed
// callback fails with ErrStateMismatch without a second exchange.
//
// Exchange failures return ErrLoginCompletion and are never retried:
// authorization codes are single-use.
func (m *Manager) CompleteLogin(ctx context.Context, state, code string) (*Session, error) {
	const op = "Manager.CompleteLogin"
	p, err := m.waitProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r, err := p.TakeRequest(state)
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", op, ErrStateMismatch, err)
		m.setLoading(false, err)
		return nil, err
	}
	if r.Silent() {
		err = fmt.Errorf("%s: %w: silent request completed as login", op, ErrStateMismatch)
		m.setLoading(false, err)
		return nil, err
	}
	gen := m.generation()
	tk, err := p.Exchange(ctx, r, state, code)
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", op, ErrLoginCompletion, err)
		m.setLoading(false, err)
		return nil, err
	}
	s, err := m.accept(ctx, p, tk, false, gen)
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", op, ErrLoginCompletion, err)
		m.setLoading(false, err)
		return nil, err
	}
	m.logger.Info("login completed", "op", op, "sub", s.Subject)
	return s, nil
}

// AbortLogin handles an authorization error response (for example
// error=access_denied) on the redirect target.  The pending request is
// discarded and authErr is recorded as an ErrLoginCompletion.
func (m *Manager) AbortLogin(ctx context.Context, state string, authErr error) error {
	const op = "Manager.AbortLogin"
	if p, err := m.waitProvider(ctx); err == nil {
		_, _ = p.TakeRequest(state)
	}
	err := fmt.Errorf("%s: %w: %w", op, ErrLoginCompletion, authErr)
	m.setLoading(false, err)
	return err
}

// accept turns a token response into the current session: it reads the
// id_token claims, optionally merges userinfo, extracts roles, persists the
// tiers, swaps the session and re-arms the renewer.  When renewal is true and
// the response has no id_token, the previous identity is kept.  If the
// session was cleared since gen was read, the token is discarded.
func (m *Manager) accept(ctx context.Context, p Adapter, tk oidc.Token, renewal bool, gen uint64) (*Session, error) {
	const op = "Manager.accept"
	if tk == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrInvalidParameter)
	}
	m.mu.RLock()
	prev := m.session
	prevRT := m.refreshToken
	m.mu.RUnlock()

	claims := map[string]interface{}{}
	idToken := tk.IdToken()
	if idToken != "" {
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if renewal && prev != nil {
		if idToken == "" {
			for k, v := range prev.Claims {
				claims[k] = v
			}
			idToken = prev.IdToken
		} else if m.config.ValidateSubOnSilentRenew {
			if sub, _ := claims["sub"].(string); sub != prev.Subject {
				return nil, fmt.Errorf("%s: renewed subject does not match session subject: %w", op, oidc.ErrInvalidSubject)
			}
		}
	}
	if m.config.LoadUserInfo {
		m.mergeUserInfo(ctx, p, tk, claims)
	}

	rt := tk.RefreshToken()
	if rt == "" && renewal {
		rt = prevRT
	}
	expiry := tk.Expiry()
	if expiry.IsZero() {
		expiry = m.now().Add(DefaultSessionLifetime)
	}
	s := m.newSession(ctx, tk.AccessToken(), idToken, expiry, tk.Scopes(), claims, rt != "")

	m.lifecycle.Lock()
	if m.generation() != gen {
		m.lifecycle.Unlock()
		return nil, fmt.Errorf("%s: %w", op, errSuperseded)
	}
	m.store.SetShortLived(ctx, store.Record{
		AccessToken: string(s.AccessToken),
		IdToken:     string(s.IdToken),
		ExpiresAt:   s.Expiry,
		Scopes:      s.Scopes,
	}, s.Expiry.Sub(m.now()))
	m.store.SetUserSnapshot(ctx, claims)
	m.store.SetDurable(ctx, string(rt))

	m.mu.Lock()
	m.session = s
	m.refreshToken = rt
	m.status = m.sessionStatus(s)
	m.mu.Unlock()
	m.lifecycle.Unlock()
	m.publish()
	m.armRenewer(s)
	return s.clone(), nil
}

// mergeUserInfo adds the userinfo claims to claims.  Failures are logged;
// a userinfo response for a different subject is ignored.
func (m *Manager) mergeUserInfo(ctx context.Context, p Adapter, tk oidc.Token, claims map[string]interface{}) {
	const op = "Manager.mergeUserInfo"
	sts, ok := tk.(oidc.StaticTokenSource)
	if !ok {
		return
	}
	info := map[string]interface{}{}
	if err := p.UserInfo(ctx, sts.StaticTokenSource(), &info); err != nil {
		m.logger.Warn("unable to load userinfo", "op", op, "error", err)
		return
	}
	if sub, ok := claims["sub"]; ok && info["sub"] != sub {
		m.logger.Warn("ignoring userinfo for a different subject", "op", op)
		return
	}
	for k, v := range info {
		claims[k] = v
	}
}
