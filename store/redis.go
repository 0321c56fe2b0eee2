// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps values in redis.  It can serve either tier when the
// session must be shared, e.g. by several replicas of a backend-for-frontend.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend wraps the client.  Keys are namespaced with the prefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) (*RedisBackend, error) {
	const op = "NewRedisBackend"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrInvalidParameter)
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

// Load implements Backend.Load.
func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	const op = "RedisBackend.Load"
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: redis get: %w", op, err)
	}
	return b, nil
}

// Store implements Backend.Store.
func (r *RedisBackend) Store(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	const op = "RedisBackend.Store"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	if err := r.client.Set(ctx, r.prefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("%s: redis set: %w", op, err)
	}
	return nil
}

// Delete implements Backend.Delete.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	const op = "RedisBackend.Delete"
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("%s: redis del: %w", op, err)
	}
	return nil
}
