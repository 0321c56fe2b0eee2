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
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	const (
		issuer   = "https://idp.example.com"
		clientId = "test-client"
		redirect = "http://127.0.0.1:8250/callback"
	)
	tests := []struct {
		name      string
		issuer    string
		clientId  string
		redirect  string
		opts      []Option
		want      func(*testing.T, *Config)
		wantErr   bool
		wantIsErr error
	}{
		{
			name:     "defaults",
			issuer:   issuer,
			clientId: clientId,
			redirect: redirect,
			want: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal(DefaultScopes, c.Scopes)
				assert.Equal([]Alg{RS256}, c.SupportedSigningAlgs)
				assert.Equal(ResponseTypeCode, c.ResponseType)
				assert.Equal(CodeChallengeS256, c.CodeChallengeMethod)
				assert.True(c.AutomaticSilentRenew)
				assert.True(c.ValidateSubOnSilentRenew)
				assert.False(c.LoadUserInfo)
				assert.Equal(30*time.Second, c.SilentRequestTimeout)
				assert.Equal(60*time.Second, c.RenewLeadTime)
				assert.Equal(redirect, c.SilentRedirect())
			},
		},
		{
			name:     "with-options",
			issuer:   issuer,
			clientId: clientId,
			redirect: redirect,
			opts: []Option{
				WithScopes("email", "openid", "email"),
				WithSilentRedirectUrl("http://127.0.0.1:8250/silent"),
				WithAutomaticSilentRenew(false),
				WithSilentRequestTimeout(5 * time.Second),
				WithLoadUserInfo(true),
				WithAudiences("api"),
				WithSupportedSigningAlgs(ES256, RS256),
			},
			want: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal([]string{"openid", "email"}, c.Scopes)
				assert.Equal("http://127.0.0.1:8250/silent", c.SilentRedirect())
				assert.False(c.AutomaticSilentRenew)
				assert.Equal(5*time.Second, c.SilentRequestTimeout)
				assert.True(c.LoadUserInfo)
				assert.Equal([]string{"api"}, c.Audiences)
				assert.Equal([]Alg{ES256, RS256}, c.SupportedSigningAlgs)
			},
		},
		{
			name:      "missing-client-id",
			issuer:    issuer,
			redirect:  redirect,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "missing-issuer",
			clientId:  clientId,
			redirect:  redirect,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "missing-redirect",
			issuer:    issuer,
			clientId:  clientId,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "bad-issuer-scheme",
			issuer:    "ftp://idp.example.com",
			clientId:  clientId,
			redirect:  redirect,
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name:      "implicit-flow",
			issuer:    issuer,
			clientId:  clientId,
			redirect:  redirect,
			opts:      []Option{WithResponseType("id_token token")},
			wantErr:   true,
			wantIsErr: ErrUnsupportedResponseType,
		},
		{
			name:      "plain-pkce",
			issuer:    issuer,
			clientId:  clientId,
			redirect:  redirect,
			opts:      []Option{WithCodeChallengeMethod("plain")},
			wantErr:   true,
			wantIsErr: ErrUnsupportedChallenge,
		},
		{
			name:      "unsupported-alg",
			issuer:    issuer,
			clientId:  clientId,
			redirect:  redirect,
			opts:      []Option{WithSupportedSigningAlgs("HS256")},
			wantErr:   true,
			wantIsErr: ErrUnsupportedAlg,
		},
		{
			name:      "zero-timeout",
			issuer:    issuer,
			clientId:  clientId,
			redirect:  redirect,
			opts:      []Option{WithSilentRequestTimeout(0)},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "bad-ca",
			issuer:    issuer,
			clientId:  clientId,
			redirect:  redirect,
			opts:      []Option{WithProviderCA("not-a-pem")},
			wantErr:   true,
			wantIsErr: ErrInvalidCACert,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.issuer, tt.clientId, tt.redirect, tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				if tt.wantIsErr != nil {
					assert.ErrorIs(err, tt.wantIsErr)
				}
				return
			}
			require.NoError(err)
			tt.want(t, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	var c *Config
	assert.ErrorIs(t, c.Validate(), ErrNilParameter)
}

func TestClientSecret_Redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	const secret ClientSecret = "super-secret"
	assert.Equal(RedactedClientSecret, secret.String())
	assert.Equal(RedactedClientSecret, fmt.Sprintf("%s", secret))
	b, err := json.Marshal(struct{ Secret ClientSecret }{secret})
	require.NoError(err)
	assert.NotContains(string(b), "super-secret")
}

func TestParseScopes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"openid", "profile", "api.read"}, ParseScopes(" openid  profile api.read "))
	assert.Empty(t, ParseScopes(""))
}
