// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oauthlab/authsession/store"
	"github.com/redis/go-redis/v9"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// NewStore builds the token store for the configured backend.  The returned
// func releases the backend's resources.
//
// The file backend keeps each tier in its own directory under Dir, the redis
// backend under its own key prefix.
//
// Supported options: WithLogger
func (s *Settings) NewStore(opt ...Option) (*store.Store, func() error, error) {
	const op = "Settings.NewStore"
	opts := getOpts(opt...)
	noop := func() error { return nil }
	storeOpts := []store.Option{
		store.WithLogger(opts.withLogger),
		store.WithSafetyMargin(s.Store.SafetyMargin),
	}
	if s.Store.KeyPrefix != "" {
		storeOpts = append(storeOpts, store.WithKeyPrefix(s.Store.KeyPrefix))
	}

	var short, durable store.Backend
	closeFn := noop
	switch s.Store.Backend {
	case BackendMemory:
		short, durable = store.NewMemoryBackend(), store.NewMemoryBackend()
	case BackendFile:
		dir, err := s.storeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		key, err := s.encryptionKey()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		fs, err := store.NewFileBackend(filepath.Join(dir, "session"), store.WithEncryptionKey(key))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		fd, err := store.NewFileBackend(filepath.Join(dir, "durable"), store.WithEncryptionKey(key))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		short, durable = fs, fd
	case BackendRedis:
		ropts, err := redis.ParseURL(s.Store.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSettings, err)
		}
		client := redis.NewClient(ropts)
		closeFn = client.Close
		if short, err = store.NewRedisBackend(client, "authsession:session:"); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		if durable, err = store.NewRedisBackend(client, "authsession:durable:"); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
	default:
		return nil, nil, fmt.Errorf("%s: unknown store backend %q: %w", op, s.Store.Backend, ErrInvalidSettings)
	}
	st, err := store.New(short, durable, storeOpts...)
	if err != nil {
		_ = closeFn()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, closeFn, nil
}

func (s *Settings) storeDir() (string, error) {
	if s.Store.Dir != "" {
		return s.Store.Dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "authsession"), nil
}
