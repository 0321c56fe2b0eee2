// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authz

import (
	"context"
	"testing"
	"time"

	"github.com/oauthlab/authsession/jwt"
	"github.com/oauthlab/authsession/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

func TestClaimsExtractor_TokenRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := NewClaimsExtractor()
	tests := []struct {
		name        string
		token       string
		wantRoles   []string
		wantDecoded bool
	}{
		{
			name:        "roles-array",
			token:       oidc.TestUnsignedJWT(t, map[string]interface{}{"roles": []string{"ROLE_ADMIN", "ROLE_USER"}}),
			wantRoles:   []string{"ROLE_ADMIN", "ROLE_USER"},
			wantDecoded: true,
		},
		{
			name:        "authorities-fallback",
			token:       oidc.TestUnsignedJWT(t, map[string]interface{}{"authorities": []string{"USER"}}),
			wantRoles:   []string{"USER"},
			wantDecoded: true,
		},
		{
			name:        "empty-roles-uses-authorities",
			token:       oidc.TestUnsignedJWT(t, map[string]interface{}{"roles": []string{}, "authorities": []string{"USER"}}),
			wantRoles:   []string{"USER"},
			wantDecoded: true,
		},
		{
			name:        "singular-role",
			token:       oidc.TestUnsignedJWT(t, map[string]interface{}{"role": "ROLE_ADMIN"}),
			wantRoles:   []string{"ROLE_ADMIN"},
			wantDecoded: true,
		},
		{
			name:        "authorities-before-role",
			token:       oidc.TestUnsignedJWT(t, map[string]interface{}{"authorities": []string{"USER"}, "role": "ADMIN"}),
			wantRoles:   []string{"USER"},
			wantDecoded: true,
		},
		{
			name:        "single-string",
			token:       oidc.TestUnsignedJWT(t, map[string]interface{}{"roles": "ADMIN"}),
			wantRoles:   []string{"ADMIN"},
			wantDecoded: true,
		},
		{
			name:        "no-role-claims",
			token:       oidc.TestUnsignedJWT(t, map[string]interface{}{"scope": "openid"}),
			wantDecoded: true,
		},
		{
			name:  "opaque",
			token: "2YotnFZFEjr1zCsicMWpAA",
		},
		{
			name:  "jwt-shaped-garbage",
			token: "not.a.jwt",
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			roles, decoded := e.TokenRoles(ctx, tt.token)
			assert.Equal(tt.wantDecoded, decoded)
			assert.Equal(tt.wantRoles, roles)
		})
	}
}

func TestClaimsExtractor_ProfileRoles(t *testing.T) {
	t.Parallel()
	e := NewClaimsExtractor()
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   []string
	}{
		{name: "nil"},
		{name: "role-string", claims: map[string]interface{}{"role": "ADMIN"}, want: []string{"ADMIN"}},
		{name: "roles-json-array", claims: map[string]interface{}{"roles": []interface{}{"USER", 1, " ADMIN "}}, want: []string{"USER", "ADMIN"}},
		{name: "role-wins", claims: map[string]interface{}{"role": "USER", "roles": []string{"ADMIN"}}, want: []string{"USER"}},
		{name: "blank-role-falls-through", claims: map[string]interface{}{"role": " ", "roles": []string{"ADMIN"}}, want: []string{"ADMIN"}},
		{name: "unsupported-shape", claims: map[string]interface{}{"role": 42}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.ProfileRoles(tt.claims))
		})
	}
}

func TestClaimsExtractor_CustomClaims(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	e := NewClaimsExtractor(WithTokenRoleClaims("groups"), WithProfileRoleClaims("groups"))
	tk := oidc.TestUnsignedJWT(t, map[string]interface{}{"groups": []string{"ops"}, "roles": []string{"ADMIN"}})
	r := e.Extract(context.Background(), tk, map[string]interface{}{"groups": "dev"})
	assert.True(r.TokenDecoded)
	assert.Equal([]string{"ops"}, r.Token)
	assert.Equal([]string{"dev"}, r.Profile)
	assert.Equal([]string{"ops", "dev"}, r.All())
}

func TestClaimsExtractor_WithKeySet(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	pub, priv := oidc.TestGenerateKeys(t)
	ks, err := jwt.NewStaticKeySet([]string{pub})
	require.NoError(err)
	e := NewClaimsExtractor(WithKeySet(ks))

	claims := josejwt.Claims{Subject: "alice", Expiry: josejwt.NewNumericDate(time.Now().Add(time.Hour))}
	signed := oidc.TestSignJWT(t, priv, claims, map[string]interface{}{"roles": []string{"ADMIN"}})
	roles, decoded := e.TokenRoles(ctx, signed)
	assert.True(decoded)
	assert.Equal([]string{"ADMIN"}, roles)

	_, otherPriv := oidc.TestGenerateKeys(t)
	forged := oidc.TestSignJWT(t, otherPriv, claims, map[string]interface{}{"roles": []string{"ADMIN"}})
	roles, decoded = e.TokenRoles(ctx, forged)
	assert.False(decoded)
	assert.Empty(roles)
}

func TestRoles_All(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Nil(Roles{}.All())
	r := Roles{Token: []string{"ROLE_ADMIN", "ROLE_USER"}, Profile: []string{"ROLE_USER", "AUDITOR"}}
	assert.Equal([]string{"ROLE_ADMIN", "ROLE_USER", "AUDITOR"}, r.All())
	assert.True(r.Has(nil, "auditor"))
	assert.False(r.Has(NewNormalizer(), "OPS"))
}
