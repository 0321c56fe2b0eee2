// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/oauthlab/authsession/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

func testClaims() jwt.Claims {
	now := time.Now()
	return jwt.Claims{
		Subject:  "alice@example.com",
		Issuer:   "https://idp.example.com",
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Minute)),
	}
}

func TestKeySets_VerifySignature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := oidc.StartTestProvider(t)
	pub, priv, _ := tp.SigningKeys()
	_, otherPriv := oidc.TestGenerateKeys(t)

	static, err := NewStaticKeySet([]string{pub})
	require.NoError(t, err)
	jwks, err := NewJSONWebKeySet(ctx, tp.Addr()+"/.well-known/jwks.json", tp.CACert())
	require.NoError(t, err)
	discovery, err := NewOIDCDiscoveryKeySet(ctx, tp.Addr(), tp.CACert())
	require.NoError(t, err)

	valid := oidc.TestSignJWT(t, priv, testClaims(), map[string]interface{}{"roles": []string{"ROLE_ADMIN"}})
	forged := oidc.TestSignJWT(t, otherPriv, testClaims(), map[string]interface{}{"roles": []string{"ROLE_ADMIN"}})

	keySets := map[string]KeySet{
		"static":    static,
		"jwks":      jwks,
		"discovery": discovery,
	}
	for name, ks := range keySets {
		ks := ks
		t.Run(name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			claims, err := ks.VerifySignature(ctx, valid)
			require.NoError(err)
			assert.Equal("alice@example.com", claims["sub"])
			assert.Equal([]interface{}{"ROLE_ADMIN"}, claims["roles"])

			_, err = ks.VerifySignature(ctx, forged)
			assert.Error(err)

			_, err = ks.VerifySignature(ctx, "not-a-jwt")
			assert.Error(err)
		})
	}

	_, err = static.VerifySignature(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = static.VerifySignature(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformedJWTToken)
}

func TestNewKeySets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := NewJSONWebKeySet(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewJSONWebKeySet(ctx, "https://idp.example.com/jwks", "bad-ca")
	assert.ErrorIs(t, err, ErrInvalidCACert)
	_, err = NewOIDCDiscoveryKeySet(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewStaticKeySet(nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewStaticKeySet([]string{"not-a-pem"})
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestParsePublicKeyPEM(t *testing.T) {
	t.Parallel()
	pub, priv := oidc.TestGenerateKeys(t)

	k, err := ParsePublicKeyPEM([]byte(pub))
	require.NoError(t, err)
	assert.NotNil(t, k)

	_, err = ParsePublicKeyPEM([]byte(priv))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	ca := oidc.TestGenerateCA(t, []string{"localhost"})
	k, err = ParsePublicKeyPEM([]byte(ca))
	require.NoError(t, err)
	assert.NotNil(t, k)

	_, err = ParsePublicKeyPEM(nil)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}
