// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oauthlab/authsession/oidc"
	"github.com/oauthlab/authsession/store"
	"github.com/stretchr/testify/require"
)

const (
	testClientID  = "test-client-id"
	testRedirect  = "https://127.0.0.1/callback"
	testSilent    = "https://127.0.0.1/silent"
	testLoggedOut = "https://127.0.0.1/"
)

// testNavigator records every navigation.
type testNavigator struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (n *testNavigator) Navigate(_ context.Context, u string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, u)
	return n.err
}

func (n *testNavigator) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.urls) == 0 {
		return ""
	}
	return n.urls[len(n.urls)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Now()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	tp      *oidc.TestProvider
	config  *oidc.Config
	short   *store.FailingBackend
	durable *store.MemoryBackend
	store   *store.Store
	nav     *testNavigator
	m       *Manager
}

// testConfig returns a config for tp.  Automatic renew is off unless the
// caller turns it back on, so timers don't race the tests.
func testConfig(t *testing.T, tp *oidc.TestProvider, opt ...oidc.Option) *oidc.Config {
	t.Helper()
	tp.SetClientCreds(testClientID, "")
	tp.SetAllowedRedirectURIs([]string{testRedirect, testSilent})
	_, _, alg := tp.SigningKeys()
	opts := append([]oidc.Option{
		oidc.WithProviderCA(tp.CACert()),
		oidc.WithSupportedSigningAlgs(alg),
		oidc.WithSilentRedirectUrl(testSilent),
		oidc.WithPostLogoutRedirectUrl(testLoggedOut),
		oidc.WithAutomaticSilentRenew(false),
		oidc.WithLoadUserInfo(false),
	}, opt...)
	c, err := oidc.NewConfig(tp.Addr(), testClientID, testRedirect, opts...)
	require.NoError(t, err)
	return c
}

// testNewEnv creates a started Manager over fresh memory backends.
func testNewEnv(t *testing.T, tp *oidc.TestProvider, cfgOpts []oidc.Option, opt ...Option) *testEnv {
	t.Helper()
	short := store.NewFailingBackend(store.NewMemoryBackend())
	durable := store.NewMemoryBackend()
	s, err := store.New(short, durable)
	require.NoError(t, err)
	env := testNewEnvWithStore(t, tp, s, cfgOpts, opt...)
	env.short, env.durable = short, durable
	return env
}

func testNewEnvWithStore(t *testing.T, tp *oidc.TestProvider, s *store.Store, cfgOpts []oidc.Option, opt ...Option) *testEnv {
	t.Helper()
	nav := &testNavigator{}
	c := testConfig(t, tp, cfgOpts...)
	m, err := NewManager(c, s, append([]Option{WithNavigator(nav)}, opt...)...)
	require.NoError(t, err)
	t.Cleanup(m.Done)
	require.NoError(t, m.Start(context.Background()))
	return &testEnv{tp: tp, config: c, store: s, nav: nav, m: m}
}

// testAuthorize sends the authorization URL through the test provider and
// returns the redirect's state and code.
func testAuthorize(t *testing.T, tp *oidc.TestProvider, authURL string) (state, code string) {
	t.Helper()
	loc, err := tp.Authorize(authURL)
	require.NoError(t, err)
	require.Empty(t, loc.Query().Get("error"))
	return loc.Query().Get("state"), loc.Query().Get("code")
}

// testLogin runs Login through CompleteLogin.
func testLogin(t *testing.T, env *testEnv) *Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.m.Login(ctx))
	state, code := testAuthorize(t, env.tp, env.nav.last())
	s, err := env.m.CompleteLogin(ctx, state, code)
	require.NoError(t, err)
	return s
}
