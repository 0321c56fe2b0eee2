// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/oauthlab/authsession/authz"
	"github.com/oauthlab/authsession/oidc"
	"github.com/oauthlab/authsession/store"
	"golang.org/x/sync/singleflight"
)

// Manager is the single source of truth for whether the user is logged in,
// as whom, with which token and for how long.  It owns the only Adapter
// instance and the only Session.  It's safe for concurrent use.
type Manager struct {
	config    *oidc.Config
	store     *store.Store
	logger    hclog.Logger
	navigator Navigator
	factory   ProviderFactory
	nowFunc   func() time.Time
	decider   *authz.Decider
	margin    time.Duration

	// provMu guards construction of prov.  ready is closed once prov is set
	// and prov is never replaced after that.
	provMu sync.Mutex
	prov   Adapter
	ready  chan struct{}

	mu           sync.RWMutex
	session      *Session
	refreshToken oidc.RefreshToken
	status       Status
	subscribers  map[int]func(Status)
	nextSub      int

	// gen is bumped whenever the session is cleared.  lifecycle serializes
	// persisting a new session with clearing one, so a token obtained before
	// a logout is never stored after it.
	gen       uint64
	lifecycle sync.Mutex

	renewals singleflight.Group

	timerMu sync.Mutex
	timer   *time.Timer

	revocations sync.WaitGroup
	closed      atomic.Bool

	backgroundCtx       context.Context
	backgroundCtxCancel context.CancelFunc
	doneOnce            sync.Once
}

// NewManager creates a Manager.  The provider isn't constructed until Start.
//
// See Manager.Done() which must be called to release manager resources.
//
// Supported options: WithLogger, WithNavigator, WithProviderFactory, WithNow,
// WithNormalizer, WithClaimsExtractor, WithSafetyMargin
func NewManager(c *oidc.Config, s *store.Store, opt ...Option) (*Manager, error) {
	const op = "NewManager"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrInvalidParameter)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrInvalidParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	opts := getOpts(opt...)
	margin := s.SafetyMargin()
	if opts.withSafetyMargin != nil {
		margin = *opts.withSafetyMargin
	}
	nowFunc := opts.withNowFunc
	if nowFunc == nil {
		nowFunc = c.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:    c,
		store:     s,
		logger:    opts.withLogger,
		navigator: opts.withNavigator,
		factory:   opts.withProviderFactory,
		nowFunc:   nowFunc,
		decider: authz.NewDecider(
			authz.WithNormalizer(opts.withNormalizer),
			authz.WithClaimsExtractor(opts.withExtractor),
		),
		margin:              margin,
		ready:               make(chan struct{}),
		subscribers:         map[int]func(Status){},
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}, nil
}

// Start constructs the provider and restores the session from the store.  It
// resolves to StateAuthenticated only if a restored token isn't expired.  If
// the provider can't be constructed, Start returns an error and may be called
// again.
func (m *Manager) Start(ctx context.Context) error {
	const op = "Manager.Start"
	m.mu.Lock()
	if m.status.State != StateUninitialized {
		m.mu.Unlock()
		return nil
	}
	m.status = Status{State: StateRestoring, Loading: true}
	m.mu.Unlock()
	m.publish()

	if _, err := m.provider(ctx); err != nil {
		m.setStatus(Status{State: StateUninitialized, Err: err})
		return fmt.Errorf("%s: %w", op, err)
	}
	m.restore(ctx)
	return nil
}

// provider returns the Adapter, constructing it on first use.
func (m *Manager) provider(ctx context.Context) (Adapter, error) {
	const op = "Manager.provider"
	m.provMu.Lock()
	defer m.provMu.Unlock()
	if m.prov != nil {
		return m.prov, nil
	}
	p, err := m.factory(ctx, m.config)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%s: provider factory returned nil: %w", op, ErrInvalidParameter)
	}
	m.prov = p
	close(m.ready)
	return p, nil
}

// readyProvider returns the Adapter without waiting.
func (m *Manager) readyProvider() (Adapter, error) {
	select {
	case <-m.ready:
		return m.prov, nil
	default:
		return nil, ErrNotReady
	}
}

// waitProvider blocks until the Adapter exists or ctx is done.
func (m *Manager) waitProvider(ctx context.Context) (Adapter, error) {
	select {
	case <-m.ready:
		return m.prov, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrNotReady, ctx.Err())
	}
}

// restore hydrates the session from the short-lived tier, or from the durable
// tier's refresh token when automatic renew is on.
func (m *Manager) restore(ctx context.Context) {
	const op = "Manager.restore"
	if rec := m.store.ShortLived(ctx); rec != nil {
		claims := map[string]interface{}{}
		if rec.IdToken != "" {
			if err := oidc.IdToken(rec.IdToken).Claims(&claims); err != nil {
				m.logger.Warn("unable to read stored id_token claims", "op", op, "error", err)
			}
		}
		if snap := m.store.UserSnapshot(ctx); snap != nil {
			mergeSnapshot(claims, snap)
		}
		rt := oidc.RefreshToken(m.store.Durable(ctx))
		s := m.newSession(ctx, oidc.AccessToken(rec.AccessToken), oidc.IdToken(rec.IdToken), rec.ExpiresAt, rec.Scopes, claims, rt != "")
		m.mu.Lock()
		m.session = s
		m.refreshToken = rt
		m.status = m.sessionStatus(s)
		m.mu.Unlock()
		m.logger.Debug("session restored", "op", op, "sub", s.Subject)
		m.publish()
		m.armRenewer(s)
		return
	}
	if rt := m.store.Durable(ctx); rt != "" && m.config.AutomaticSilentRenew {
		m.mu.Lock()
		m.refreshToken = oidc.RefreshToken(rt)
		m.mu.Unlock()
		err := m.RenewSilently(ctx)
		if err == nil {
			return
		}
		m.logger.Info("unable to restore session with refresh token", "op", op, "error", err)
	}
	m.mu.Lock()
	if m.session == nil {
		m.status = Status{State: StateUnauthenticated, Err: m.status.Err}
	}
	m.mu.Unlock()
	m.publish()
}

// Done stops background renewal, waits for in-flight revocations and
// releases the provider.
func (m *Manager) Done() {
	m.doneOnce.Do(func() {
		m.closed.Store(true)
		m.stopTimer()
		m.revocations.Wait()
		m.backgroundCtxCancel()
		if p, err := m.readyProvider(); err == nil {
			p.Done()
		}
	})
}

// Config returns the manager's configuration.
func (m *Manager) Config() *oidc.Config { return m.config }

// AccessToken returns the current access token, or "" if there's no session
// or it has expired (after the safety margin).  It never makes a network
// call.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.usable() {
		return ""
	}
	return string(m.session.AccessToken)
}

// IsAuthenticated reports whether a session exists and hasn't expired.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usable()
}

// HasRole reports whether the session's access token roles, or failing that
// its identity claim roles, include role.  It's false without a session.
func (m *Manager) HasRole(role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.usable() {
		return false
	}
	return m.session.roles.Has(m.decider.Normalizer(), role)
}

// IsAdmin is HasRole(authz.RoleAdmin).
func (m *Manager) IsAdmin() bool { return m.HasRole(authz.RoleAdmin) }

// IsUser is HasRole(authz.RoleUser).
func (m *Manager) IsUser() bool { return m.HasRole(authz.RoleUser) }

// Session returns a snapshot of the current session, or nil when there's no
// usable session.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.usable() {
		return nil
	}
	return m.session.clone()
}

// usable reports whether the session may be served: it exists, hasn't
// expired and the short-lived tier holding it wasn't lost to a failed write.
// m.mu must be held.
func (m *Manager) usable() bool {
	return m.session.Valid() && m.store.ShortLivedHealthy()
}

// sessionStatus derives the status for s as the current session.  It's only
// authenticated while s may be served.  m.mu must be held.
func (m *Manager) sessionStatus(s *Session) Status {
	const op = "Manager.sessionStatus"
	switch {
	case !m.store.ShortLivedHealthy():
		return Status{
			State: StateUnauthenticated,
			Err:   fmt.Errorf("%s: %w: short-lived tier write failed", op, store.ErrStorage),
		}
	case !s.Valid():
		return Status{
			State: StateUnauthenticated,
			Err:   fmt.Errorf("%s: %w: access token expires within the safety margin", op, ErrSessionExpired),
		}
	default:
		return Status{State: StateAuthenticated}
	}
}

// Principal returns the session as an authz.Principal.
func (m *Manager) Principal() authz.Principal {
	s := m.Session()
	if s == nil {
		return authz.Principal{}
	}
	return authz.Principal{
		Authenticated: true,
		AccessToken:   string(s.AccessToken),
		Claims:        s.Claims,
	}
}

// Decider returns the authz.Decider the manager uses for role checks.
func (m *Manager) Decider() *authz.Decider { return m.decider }

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers fn to receive every status change.  fn is called
// synchronously and must not block.  The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Status)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Manager) publish() {
	m.mu.RLock()
	st := m.status
	subs := make([]func(Status), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (m *Manager) setStatus(st Status) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
	m.publish()
}

// setLoading flips the loading flag, and from LoggedOut loops back to
// Unauthenticated.
func (m *Manager) setLoading(loading bool, err error) {
	m.mu.Lock()
	if m.status.State == StateLoggedOut {
		m.status.State = StateUnauthenticated
	}
	m.status.Loading = loading
	m.status.Err = err
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) now() time.Time { return m.nowFunc() }

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// clearLocal drops the session and wipes both store tiers, then sets st.  It
// returns the session that was cleared.  Callers publish.
func (m *Manager) clearLocal(ctx context.Context, st Status) *Session {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.stopTimer()
	m.store.ClearAll(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.session
	m.session = nil
	m.refreshToken = ""
	m.gen++
	m.status = st
	return prev
}

// newSession builds a Session.  Roles are extracted here so later role
// checks never decode tokens.
func (m *Manager) newSession(ctx context.Context, at oidc.AccessToken, it oidc.IdToken, expiry time.Time, scopes []string, claims map[string]interface{}, canRefresh bool) *Session {
	roles := m.decider.Extractor().Extract(ctx, string(at), claims)
	return &Session{
		Subject:     claimString(claims, "sub", "id"),
		Username:    claimString(claims, "preferred_username", "username"),
		Email:       claimString(claims, "email"),
		DisplayName: claimString(claims, "name", "displayName"),
		AccessToken: at,
		IdToken:     it,
		Expiry:      expiry,
		CanRefresh:  canRefresh,
		Scopes:      scopes,
		Roles:       roles.All(),
		Claims:      claims,
		roles:       roles,
		margin:      m.margin,
		nowFunc:     m.nowFunc,
	}
}

// mergeSnapshot fills claims missing from a restored id_token with the
// stored snapshot's fields.
func mergeSnapshot(claims map[string]interface{}, snap *store.UserSnapshot) {
	set := func(k, v string) {
		if _, ok := claims[k]; !ok && v != "" {
			claims[k] = v
		}
	}
	set("sub", snap.ID)
	set("preferred_username", snap.Username)
	set("email", snap.Email)
	set("given_name", snap.FirstName)
	set("family_name", snap.LastName)
	set("name", snap.DisplayName)
	if _, ok := claims["roles"]; !ok && len(snap.Roles) > 0 {
		claims["roles"] = append([]string(nil), snap.Roles...)
	}
}
