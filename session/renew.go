// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oauthlab/authsession/oidc"
)

// minRenewDelay keeps a provider issuing very short-lived tokens from
// turning the renewer into a busy loop.
const minRenewDelay = time.Second

// SilentRenewURL creates a prompt=none pending request and returns its
// authorization URL for a hidden user agent.  The flow resumes in
// CompleteSilentRenew.
func (m *Manager) SilentRenewURL(ctx context.Context) (string, error) {
	const op = "Manager.SilentRenewURL"
	p, err := m.readyProvider()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, _, err := p.BeginAuth(ctx, oidc.WithSilent())
	if err != nil {
		return "", fmt.Errorf("%s: unable to begin silent authorization: %w", op, err)
	}
	return u, nil
}

// CompleteSilentRenew finishes a flow started by SilentRenewURL.  On success
// the session's tokens are replaced.  On failure it returns ErrSilentRenew and
// leaves a still-valid session in place.
func (m *Manager) CompleteSilentRenew(ctx context.Context, state, code string) (*Session, error) {
	const op = "Manager.CompleteSilentRenew"
	p, err := m.waitProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r, err := p.TakeRequest(state)
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", op, ErrStateMismatch, err)
		m.recordErr(err)
		return nil, err
	}
	if !r.Silent() {
		err = fmt.Errorf("%s: %w: login request completed as silent renew", op, ErrStateMismatch)
		m.recordErr(err)
		return nil, err
	}
	gen := m.generation()
	tk, err := p.Exchange(ctx, r, state, code)
	var s *Session
	if err == nil {
		s, err = m.accept(ctx, p, tk, true, gen)
	}
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", op, ErrSilentRenew, err)
		m.renewFailed(ctx, err)
		return nil, err
	}
	return s, nil
}

// AbortSilentRenew handles an authorization error response (for example
// error=login_required) on the silent redirect target.
func (m *Manager) AbortSilentRenew(ctx context.Context, state string, authErr error) error {
	const op = "Manager.AbortSilentRenew"
	if p, err := m.waitProvider(ctx); err == nil {
		_, _ = p.TakeRequest(state)
	}
	err := fmt.Errorf("%s: %w: %w", op, ErrSilentRenew, authErr)
	m.renewFailed(ctx, err)
	return err
}

// RenewSilently renews the session with the refresh token, bounded by the
// config's SilentRequestTimeout.  Concurrent callers share a single attempt.
// On failure it returns ErrSilentRenew and leaves a still-valid session in
// place.
func (m *Manager) RenewSilently(ctx context.Context) error {
	const op = "Manager.RenewSilently"
	p, err := m.readyProvider()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ch := m.renewals.DoChan("refresh", func() (interface{}, error) {
		return nil, m.refresh(p)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%s: %w", op, res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", op, ErrSilentRenew, ctx.Err())
	}
}

func (m *Manager) refresh(p Adapter) error {
	const op = "Manager.refresh"
	m.mu.Lock()
	rt := m.refreshToken
	gen := m.gen
	if m.status.State == StateAuthenticated {
		m.status.State = StateRenewing
	}
	m.status.Loading = true
	m.mu.Unlock()
	m.publish()

	// the attempt is shared, so it's bound to the manager rather than to
	// any one caller.
	ctx, cancel := context.WithTimeout(m.backgroundCtx, m.config.SilentRequestTimeout)
	defer cancel()

	var err error
	switch rt {
	case "":
		err = oidc.ErrMissingRefreshToken
	default:
		var tk *oidc.Tk
		if tk, err = p.Refresh(ctx, rt); err == nil {
			_, err = m.accept(ctx, p, tk, true, gen)
		}
	}
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", op, ErrSilentRenew, err)
		m.renewFailed(ctx, err)
		return err
	}
	m.logger.Debug("session renewed", "op", op)
	return nil
}

// renewFailed applies the silent-renew-error transition: a session that's
// still valid keeps serving and the hard expiry is left to end it; otherwise
// the session is expired now.
func (m *Manager) renewFailed(ctx context.Context, err error) {
	const op = "Manager.renewFailed"
	m.logger.Warn("silent renew failed", "op", op, "error", err)
	m.mu.Lock()
	s := m.session
	switch {
	case m.status.State == StateLoggedOut:
		m.status.Loading = false
		m.mu.Unlock()
		m.publish()
	case s.Valid():
		m.status = Status{State: m.sessionStatus(s).State, Err: err}
		m.mu.Unlock()
		m.publish()
		m.armExpiry(s)
	case s != nil:
		m.mu.Unlock()
		m.expire(ctx, err)
	default:
		m.status = Status{State: StateUnauthenticated, Err: err}
		m.mu.Unlock()
		m.publish()
	}
}

// expire ends the session after an unrecoverable renewal failure.
func (m *Manager) expire(ctx context.Context, cause error) {
	const op = "Manager.expire"
	m.clearLocal(ctx, Status{
		State: StateUnauthenticated,
		Err:   fmt.Errorf("%w: %w", ErrSessionExpired, cause),
	})
	m.logger.Info("session expired", "op", op)
	m.publish()
}

// recordErr sets the status error without changing state.
func (m *Manager) recordErr(err error) {
	m.mu.Lock()
	m.status.Err = err
	m.status.Loading = false
	m.mu.Unlock()
	m.publish()
}

// armRenewer schedules a renewal RenewLeadTime before the session expires.
func (m *Manager) armRenewer(s *Session) {
	if !m.config.AutomaticSilentRenew || m.closed.Load() {
		return
	}
	remaining := s.Expiry.Sub(m.now())
	delay := remaining - m.config.RenewLeadTime
	if delay <= 0 {
		delay = remaining / 2
	}
	if delay < minRenewDelay {
		delay = minRenewDelay
	}
	m.setTimer(delay, func() {
		if !m.isCurrent(s) {
			return
		}
		_ = m.RenewSilently(m.backgroundCtx)
	})
}

// armExpiry schedules the access-token-expired event at the session's hard
// expiry.
func (m *Manager) armExpiry(s *Session) {
	if !m.config.AutomaticSilentRenew || m.closed.Load() {
		return
	}
	delay := s.Expiry.Sub(m.now())
	if delay < 0 {
		delay = 0
	}
	m.setTimer(delay, func() {
		if !m.isCurrent(s) {
			return
		}
		_ = m.Notify(m.backgroundCtx, Event{Kind: EventAccessTokenExpired})
	})
}

func (m *Manager) setTimer(d time.Duration, f func()) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, f)
}

func (m *Manager) stopTimer() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) isCurrent(s *Session) bool {
	if m.closed.Load() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session == s
}
