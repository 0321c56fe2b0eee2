// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewToken(t *testing.T) {
	t.Parallel()
	now := time.Now()
	nowFn := func() time.Time { return now }

	tests := []struct {
		name        string
		idToken     IdToken
		token       *oauth2.Token
		opts        []Option
		wantExpired bool
		wantScopes  []string
		wantErr     bool
		wantIsErr   error
	}{
		{
			name:    "valid",
			idToken: "id",
			token: (&oauth2.Token{
				AccessToken:  "at",
				RefreshToken: "rt",
				Expiry:       now.Add(time.Hour),
			}).WithExtra(map[string]interface{}{"scope": "openid api.read"}),
			opts:       []Option{WithNow(nowFn)},
			wantScopes: []string{"openid", "api.read"},
		},
		{
			name:        "expired",
			token:       &oauth2.Token{AccessToken: "at", Expiry: now.Add(-time.Second)},
			opts:        []Option{WithNow(nowFn)},
			wantExpired: true,
		},
		{
			name:        "within-skew",
			token:       &oauth2.Token{AccessToken: "at", Expiry: now.Add(10 * time.Second)},
			opts:        []Option{WithNow(nowFn), WithExpirySkew(30 * time.Second)},
			wantExpired: true,
		},
		{
			name:  "no-expiry",
			token: &oauth2.Token{AccessToken: "at"},
		},
		{
			name:      "nil-token",
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name:      "missing-access-token",
			token:     &oauth2.Token{RefreshToken: "rt"},
			wantErr:   true,
			wantIsErr: ErrMissingAccessToken,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewToken(tt.idToken, tt.token, tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.idToken, got.IdToken())
			assert.Equal(AccessToken(tt.token.AccessToken), got.AccessToken())
			assert.Equal(RefreshToken(tt.token.RefreshToken), got.RefreshToken())
			assert.Equal(tt.token.Expiry, got.Expiry())
			assert.Equal(tt.wantExpired, got.IsExpired())
			assert.Equal(!tt.wantExpired, got.Valid())
			assert.Equal(tt.wantScopes, got.Scopes())
			assert.NotNil(got.StaticTokenSource())
		})
	}
}

func TestTokens_Redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	const (
		at AccessToken  = "access-secret"
		it IdToken      = "id-secret"
		rt RefreshToken = "refresh-secret"
	)
	assert.Equal(RedactedAccessToken, fmt.Sprintf("%v", at))
	assert.Equal(RedactedIdToken, fmt.Sprintf("%v", it))
	assert.Equal(RedactedRefreshToken, fmt.Sprintf("%v", rt))

	b, err := json.Marshal(map[string]interface{}{"at": at, "it": it, "rt": rt})
	require.NoError(err)
	assert.NotContains(string(b), "secret")
}

func TestUnmarshalClaims(t *testing.T) {
	t.Parallel()
	raw := TestUnsignedJWT(t, map[string]interface{}{"roles": []string{"ROLE_ADMIN"}})
	assert.True(t, IsJWT(raw))

	var claims map[string]interface{}
	require.NoError(t, UnmarshalClaims(raw, &claims))
	assert.Equal(t, "test", claims["sub"])
	assert.Equal(t, []interface{}{"ROLE_ADMIN"}, claims["roles"])

	var idClaims map[string]interface{}
	require.NoError(t, IdToken(raw).Claims(&idClaims))
	assert.Equal(t, claims, idClaims)

	assert.False(t, IsJWT("opaque-token"))
	assert.ErrorIs(t, UnmarshalClaims("opaque-token", &claims), ErrMalformedToken)
	assert.ErrorIs(t, UnmarshalClaims("a.b.c", &claims), ErrMalformedToken)
	assert.ErrorIs(t, UnmarshalClaims(raw, nil), ErrNilParameter)
	assert.ErrorIs(t, IdToken("").Claims(&claims), ErrInvalidParameter)
}
