// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/oauthlab/authsession/oidc"
	"github.com/oauthlab/authsession/session"
	"github.com/oauthlab/authsession/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	testClientID = "test-client-id"
	testRedirect = "https://127.0.0.1/callback"
	testSilent   = "https://127.0.0.1/silent"
)

var (
	_ LoginCompleter       = (*session.Manager)(nil)
	_ SilentRenewCompleter = (*session.Manager)(nil)
)

// testNewManager returns a manager for tp, started unless start is false.
func testNewManager(t *testing.T, tp *oidc.TestProvider, start bool) *session.Manager {
	t.Helper()
	require := require.New(t)
	tp.SetClientCreds(testClientID, "")
	tp.SetAllowedRedirectURIs([]string{testRedirect, testSilent})
	_, _, alg := tp.SigningKeys()
	c, err := oidc.NewConfig(tp.Addr(), testClientID, testRedirect,
		oidc.WithProviderCA(tp.CACert()),
		oidc.WithSupportedSigningAlgs(alg),
		oidc.WithSilentRedirectUrl(testSilent),
		oidc.WithAutomaticSilentRenew(false),
		oidc.WithLoadUserInfo(false),
	)
	require.NoError(err)
	s, err := store.New(store.NewMemoryBackend(), store.NewMemoryBackend())
	require.NoError(err)
	nav := session.NavigatorFunc(func(context.Context, string) error { return nil })
	m, err := session.NewManager(c, s, session.WithNavigator(nav))
	require.NoError(err)
	t.Cleanup(m.Done)
	if start {
		require.NoError(m.Start(context.Background()))
	}
	return m
}

// testCallback sends the redirect's query to h.
func testCallback(h http.Handler, loc *url.URL) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, loc.String(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// testErrorPage parses the page rendered by ErrorPage.
func testErrorPage(t *testing.T, rec *httptest.ResponseRecorder) (message, loginHref string) {
	t.Helper()
	root, err := html.Parse(rec.Body)
	require.NoError(t, err)
	title, ok := scrape.Find(root, scrape.ById("title"))
	require.True(t, ok)
	require.Equal(t, atom.H1, title.DataAtom)
	msg, ok := scrape.Find(root, scrape.ById("message"))
	require.True(t, ok)
	if a, ok := scrape.Find(root, scrape.ById("login")); ok {
		loginHref = scrape.Attr(a, "href")
	}
	return scrape.Text(msg), loginHref
}

func TestLogin(t *testing.T) {
	t.Parallel()
	tp := oidc.StartTestProvider(t)
	m := testNewManager(t, tp, true)

	tests := []struct {
		name      string
		lc        LoginCompleter
		sFn       SuccessResponseFunc
		eFn       ErrorResponseFunc
		wantIsErr error
	}{
		{name: "valid", lc: m, sFn: NoContentSuccess, eFn: ErrorPage("/login")},
		{name: "nil-completer", sFn: NoContentSuccess, eFn: ErrorPage("/login"), wantIsErr: oidc.ErrNilParameter},
		{name: "nil-sFn", lc: m, eFn: ErrorPage("/login"), wantIsErr: oidc.ErrNilParameter},
		{name: "nil-eFn", lc: m, sFn: NoContentSuccess, wantIsErr: oidc.ErrNilParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := Login(tt.lc, tt.sFn, tt.eFn)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
	_, err := SilentRenew(nil, NoContentSuccess, ErrorPage(""))
	assert.ErrorIs(t, err, oidc.ErrNilParameter)
}

func TestLogin_Responses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success-then-replay", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		m := testNewManager(t, tp, true)
		h, err := Login(m, RedirectSuccess("/home"), ErrorPage("/login"))
		require.NoError(err)

		authURL, err := m.LoginURL(ctx)
		require.NoError(err)
		loc, err := tp.Authorize(authURL)
		require.NoError(err)

		rec := testCallback(h, loc)
		assert.Equal(http.StatusSeeOther, rec.Code)
		assert.Equal("/home", rec.Header().Get("Location"))
		assert.True(m.IsAuthenticated())

		rec = testCallback(h, loc)
		assert.Equal(http.StatusBadRequest, rec.Code)
		msg, href := testErrorPage(t, rec)
		assert.Contains(msg, "already used")
		assert.Equal("/login", href)
		assert.Equal(1, tp.TokenRequestCount())
	})
	t.Run("provider-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		m := testNewManager(t, tp, true)
		h, err := Login(m, NoContentSuccess, ErrorPage("/login"))
		require.NoError(err)

		authURL, err := m.LoginURL(ctx)
		require.NoError(err)
		u, err := url.Parse(authURL)
		require.NoError(err)
		loc, err := url.Parse(testRedirect + "?" + url.Values{
			"state":             {u.Query().Get("state")},
			"error":             {"access_denied"},
			"error_description": {"user cancelled"},
		}.Encode())
		require.NoError(err)

		rec := testCallback(h, loc)
		assert.Equal(http.StatusUnauthorized, rec.Code)
		msg, _ := testErrorPage(t, rec)
		assert.Equal("access_denied: user cancelled", msg)
		st := m.Status()
		assert.False(st.Loading)
		assert.ErrorIs(st.Err, session.ErrLoginCompletion)
	})
	t.Run("exchange-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		m := testNewManager(t, tp, true)
		h, err := Login(m, NoContentSuccess, ErrorPage(""))
		require.NoError(err)

		authURL, err := m.LoginURL(ctx)
		require.NoError(err)
		loc, err := tp.Authorize(authURL)
		require.NoError(err)
		q := loc.Query()
		q.Set("code", "bogus-code")
		loc.RawQuery = q.Encode()

		rec := testCallback(h, loc)
		assert.Equal(http.StatusInternalServerError, rec.Code)
		_, href := testErrorPage(t, rec)
		assert.Empty(href)
		assert.False(m.IsAuthenticated())
	})
	t.Run("not-ready", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		m := testNewManager(t, tp, false)
		h, err := Login(m, NoContentSuccess, ErrorPage("/login"))
		require.NoError(err)

		reqCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, testRedirect+"?state=s&code=c", nil).WithContext(reqCtx)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(http.StatusServiceUnavailable, rec.Code)
	})
}

func TestSilentRenew_Responses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("renewed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		m := testNewManager(t, tp, true)
		login, err := Login(m, NoContentSuccess, ErrorPage(""))
		require.NoError(err)
		silent, err := SilentRenew(m, NoContentSuccess, ErrorPage(""))
		require.NoError(err)

		authURL, err := m.LoginURL(ctx)
		require.NoError(err)
		loc, err := tp.Authorize(authURL)
		require.NoError(err)
		require.Equal(http.StatusNoContent, testCallback(login, loc).Code)
		first := m.AccessToken()

		authURL, err = m.SilentRenewURL(ctx)
		require.NoError(err)
		loc, err = tp.Authorize(authURL)
		require.NoError(err)
		assert.Equal(http.StatusNoContent, testCallback(silent, loc).Code)
		assert.NotEqual(first, m.AccessToken())
		assert.True(m.IsAuthenticated())
	})
	t.Run("login-required", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		m := testNewManager(t, tp, true)
		silent, err := SilentRenew(m, NoContentSuccess, ErrorPage(""))
		require.NoError(err)
		tp.SetLoginRequired(true)

		authURL, err := m.SilentRenewURL(ctx)
		require.NoError(err)
		loc, err := tp.Authorize(authURL)
		require.NoError(err)

		rec := testCallback(silent, loc)
		assert.Equal(http.StatusUnauthorized, rec.Code)
		msg, _ := testErrorPage(t, rec)
		assert.Contains(msg, "login_required")
		assert.ErrorIs(m.Status().Err, session.ErrSilentRenew)
	})
}

func TestAuthenErrorResponse_Error(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("invalid_request", (&AuthenErrorResponse{Code: "invalid_request"}).Error())
	assert.Equal("invalid_request: missing nonce", (&AuthenErrorResponse{Code: "invalid_request", Description: "missing nonce"}).Error())
}
