// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
)

// Notify applies a lifecycle event:
//
//	user-loaded:          replace the session, persist it, clear the error
//	user-unloaded:        clear the session and both store tiers
//	access-token-expired: renew; on failure clear everything and set
//	                      ErrSessionExpired
//	user-signed-out:      clear the session and both store tiers
//	silent-renew-error:   set the error; a still-valid session keeps serving
//	                      until its hard expiry
//
// The renewer delivers the timed events itself.
func (m *Manager) Notify(ctx context.Context, e Event) error {
	const op = "Manager.Notify"
	m.logger.Debug("event", "op", op, "kind", e.Kind.String())
	switch e.Kind {
	case EventUserLoaded:
		if e.Token == nil {
			return fmt.Errorf("%s: %s event without a token: %w", op, e.Kind, ErrInvalidParameter)
		}
		p, err := m.readyProvider()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		renewal := m.Session() != nil
		if _, err := m.accept(ctx, p, e.Token, renewal, m.generation()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	case EventUserUnloaded:
		m.clearLocal(ctx, Status{State: StateUnauthenticated})
		m.publish()
	case EventAccessTokenExpired:
		m.mu.RLock()
		hasSession := m.session != nil
		m.mu.RUnlock()
		if !hasSession {
			return nil
		}
		if err := m.RenewSilently(ctx); err != nil {
			if m.closed.Load() {
				return nil
			}
			m.expire(ctx, err)
		}
	case EventUserSignedOut:
		m.clearLocal(ctx, Status{State: StateLoggedOut})
		m.publish()
	case EventSilentRenewError:
		err := ErrSilentRenew
		if e.Err != nil {
			err = fmt.Errorf("%w: %w", ErrSilentRenew, e.Err)
		}
		m.renewFailed(ctx, err)
	default:
		return fmt.Errorf("%s: unknown event kind %d: %w", op, e.Kind, ErrInvalidParameter)
	}
	return nil
}
