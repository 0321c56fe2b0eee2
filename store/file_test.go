// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend(t *testing.T) {
	t.Parallel()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "plain"},
		{name: "encrypted", opts: []Option{WithEncryptionKey(key)}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			now := time.Now()
			dir := filepath.Join(t.TempDir(), "tokens")
			b, err := NewFileBackend(dir, append(tt.opts, WithNow(func() time.Time { return now }))...)
			require.NoError(t, err)
			testBackend(t, b, func(d time.Duration) { now = now.Add(d) })

			info, err := os.Stat(dir)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
		})
	}
}

func TestFileBackend_AtRest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(err)

	dir := t.TempDir()
	b, err := NewFileBackend(dir, WithEncryptionKey(key))
	require.NoError(err)
	require.NoError(b.Store(ctx, "refresh", []byte("my-refresh-token"), 0))

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	require.Len(entries, 1)
	assert.NotContains(entries[0].Name(), "refresh", "file names don't reveal keys")

	info, err := entries[0].Info()
	require.NoError(err)
	assert.Equal(os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(err)
	assert.NotContains(string(raw), "my-refresh-token")
	assert.Equal(4, strings.Count(string(raw), "."), "compact JWE has five parts")

	otherKey := make([]byte, KeySize)
	_, err = rand.Read(otherKey)
	require.NoError(err)
	other, err := NewFileBackend(dir, WithEncryptionKey(otherKey))
	require.NoError(err)
	_, err = other.Load(ctx, "refresh")
	require.Error(err)
	assert.NotErrorIs(err, ErrNotFound)
}

func TestNewFileBackend(t *testing.T) {
	t.Parallel()
	_, err := NewFileBackend("")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewFileBackend(t.TempDir(), WithEncryptionKey([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
