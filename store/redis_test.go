// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedisClient returns a client for AUTHSESSION_TEST_REDIS_ADDR.  Tests
// are skipped when redis isn't available.
func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("AUTHSESSION_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AUTHSESSION_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testRedisClient(t)
	prefix, err := uuid.GenerateUUID()
	require.NoError(t, err)

	b, err := NewRedisBackend(client, prefix+":")
	require.NoError(t, err)
	testBackend(t, b, nil)

	ctx := context.Background()
	require.NoError(t, b.Store(ctx, "ttl", []byte("v"), time.Minute))
	ttl := client.TTL(ctx, prefix+":ttl").Val()
	assert.True(t, ttl > 0 && ttl <= time.Minute)
	require.NoError(t, b.Delete(ctx, "ttl"))
}

func TestNewRedisBackend(t *testing.T) {
	t.Parallel()
	_, err := NewRedisBackend(nil, "")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
