// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackend exercises the Backend contract.
func testBackend(t *testing.T, b Backend, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)

	_, err := b.Load(ctx, "missing")
	assert.ErrorIs(err, ErrNotFound)

	require.NoError(b.Store(ctx, "k1", []byte("v1"), 0))
	got, err := b.Load(ctx, "k1")
	require.NoError(err)
	assert.Equal([]byte("v1"), got)

	require.NoError(b.Store(ctx, "k1", []byte("v2"), 0))
	got, err = b.Load(ctx, "k1")
	require.NoError(err)
	assert.Equal([]byte("v2"), got)

	require.NoError(b.Delete(ctx, "k1"))
	_, err = b.Load(ctx, "k1")
	assert.ErrorIs(err, ErrNotFound)
	require.NoError(b.Delete(ctx, "k1"), "deleting a missing key isn't an error")

	assert.ErrorIs(b.Store(ctx, "", []byte("v"), 0), ErrInvalidParameter)

	if advance != nil {
		require.NoError(b.Store(ctx, "ttl", []byte("v"), time.Minute))
		_, err = b.Load(ctx, "ttl")
		require.NoError(err)
		advance(2 * time.Minute)
		_, err = b.Load(ctx, "ttl")
		assert.ErrorIs(err, ErrNotFound)
	}
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := NewMemoryBackend(WithNow(func() time.Time { return now }))
	testBackend(t, b, func(d time.Duration) { now = now.Add(d) })
	assert.Equal(t, 0, b.Len())
}

func TestMemoryBackend_CopiesValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemoryBackend()
	v := []byte("value")
	require.NoError(t, b.Store(ctx, "k", v, 0))
	v[0] = 'X'
	got, err := b.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))
}
