// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	t.Parallel()
	const redirect = "https://example.com/callback"

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(time.Minute, redirect)
		require.NoError(err)
		assert.NotEmpty(r.State())
		assert.NotEmpty(r.Nonce())
		assert.NotEqual(r.State(), r.Nonce())
		assert.Equal(redirect, r.RedirectURL())
		assert.False(r.IsExpired())
		assert.False(r.Silent())

		// RFC 7636: verifier of 43-128 chars, challenge is BASE64URL(SHA256(verifier))
		assert.GreaterOrEqual(len(r.PKCEVerifier()), 43)
		sum := sha256.Sum256([]byte(r.PKCEVerifier()))
		assert.Equal(base64.RawURLEncoding.EncodeToString(sum[:]), r.PKCEChallenge())

		other, err := NewRequest(time.Minute, redirect)
		require.NoError(err)
		assert.NotEqual(r.State(), other.State())
		assert.NotEqual(r.PKCEVerifier(), other.PKCEVerifier())
	})
	t.Run("silent", func(t *testing.T) {
		r, err := NewRequest(time.Minute, redirect, WithSilent())
		require.NoError(t, err)
		assert.True(t, r.Silent())
	})
	t.Run("expired", func(t *testing.T) {
		now := time.Now()
		clock := now
		r, err := NewRequest(time.Minute, redirect, WithNow(func() time.Time { return clock }))
		require.NoError(t, err)
		assert.False(t, r.IsExpired())
		clock = now.Add(2 * time.Minute)
		assert.True(t, r.IsExpired())
	})
	t.Run("missing-redirect", func(t *testing.T) {
		_, err := NewRequest(time.Minute, "")
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
	t.Run("zero-expiry", func(t *testing.T) {
		_, err := NewRequest(0, redirect)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestRequestCache(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c := NewRequestCache()

	r, err := NewRequest(time.Minute, "https://example.com")
	require.NoError(err)
	require.NoError(c.Add(r))
	assert.Equal(1, c.Len())

	got, err := c.Take(r.State())
	require.NoError(err)
	assert.Equal(r.State(), got.State())

	_, err = c.Take(r.State())
	assert.ErrorIs(err, ErrNotFound, "a state can only be taken once")

	_, err = c.Take("unknown")
	assert.ErrorIs(err, ErrNotFound)

	_, err = c.Take("")
	assert.ErrorIs(err, ErrNotFound)

	assert.ErrorIs(c.Add(nil), ErrNilParameter)

	expired, err := NewRequest(time.Nanosecond, "https://example.com")
	require.NoError(err)
	require.NoError(c.Add(expired))
	time.Sleep(time.Millisecond)
	_, err = c.Take(expired.State())
	assert.ErrorIs(err, ErrExpiredRequest)
	assert.Equal(0, c.Len())

	require.NoError(c.Add(r))
	c.Clear()
	assert.Equal(0, c.Len())
}
