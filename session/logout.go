// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"

	"github.com/oauthlab/authsession/oidc"
)

// Logout clears the session and both store tiers, revokes the access token in
// the background and navigates to the end session endpoint.  Local state is
// cleared before anything touches the network, so a failed or slow revocation
// never leaves tokens behind; revocation errors are only logged.
func (m *Manager) Logout(ctx context.Context) error {
	const op = "Manager.Logout"
	prev := m.clearLocal(ctx, Status{State: StateLoggedOut})
	m.publish()
	m.logger.Info("logged out", "op", op)

	p, err := m.readyProvider()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var hint oidc.IdToken
	if prev != nil {
		hint = prev.IdToken
		if prev.AccessToken != "" {
			m.revoke(p, prev.AccessToken)
		}
	}
	u, err := p.EndSessionURL(hint)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := m.navigator.Navigate(ctx, u); err != nil {
		return fmt.Errorf("%s: unable to navigate to end session endpoint: %w", op, err)
	}
	return nil
}

// Unauthorized forces a local logout after a resource server rejected the
// session and it couldn't be renewed.  There's no navigation: the caller
// decides how to send the user back to Login.
func (m *Manager) Unauthorized(ctx context.Context, cause error) {
	const op = "Manager.Unauthorized"
	m.clearLocal(ctx, Status{
		State: StateLoggedOut,
		Err:   fmt.Errorf("%w: %w", ErrSessionExpired, cause),
	})
	m.logger.Warn("session rejected by resource server, logged out", "op", op, "error", cause)
	m.publish()
}

// revoke is fire-and-forget, bounded by SilentRequestTimeout.  Done waits for
// it.
func (m *Manager) revoke(p Adapter, at oidc.AccessToken) {
	const op = "Manager.revoke"
	if m.closed.Load() {
		return
	}
	m.revocations.Add(1)
	go func() {
		defer m.revocations.Done()
		ctx, cancel := context.WithTimeout(m.backgroundCtx, m.config.SilentRequestTimeout)
		defer cancel()
		if err := p.Revoke(ctx, at); err != nil {
			m.logger.Warn("unable to revoke access token", "op", op, "error", err)
			return
		}
		m.logger.Debug("access token revoked", "op", op)
	}()
}
