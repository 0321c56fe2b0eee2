// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend keeps values for the lifetime of the process.  It's the
// default short-lived tier.
type MemoryBackend struct {
	mu      sync.RWMutex
	values  map[string]memoryValue
	nowFunc func() time.Time
}

type memoryValue struct {
	val       []byte
	expiresAt time.Time
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty MemoryBackend.
//
// Supported options: WithNow
func NewMemoryBackend(opt ...Option) *MemoryBackend {
	opts := getOpts(opt...)
	return &MemoryBackend{
		values:  map[string]memoryValue{},
		nowFunc: opts.withNowFunc,
	}
}

// Load implements Backend.Load.  Expired values are evicted on read.
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	const op = "MemoryBackend.Load"
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if !v.expiresAt.IsZero() && !v.expiresAt.After(m.now()) {
		m.mu.Lock()
		if cur, ok := m.values[key]; ok && cur.expiresAt.Equal(v.expiresAt) {
			delete(m.values, key)
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return append([]byte(nil), v.val...), nil
}

// Store implements Backend.Store.
func (m *MemoryBackend) Store(_ context.Context, key string, val []byte, ttl time.Duration) error {
	const op = "MemoryBackend.Store"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	v := memoryValue{val: append([]byte(nil), val...)}
	if ttl > 0 {
		v.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
	return nil
}

// Delete implements Backend.Delete.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Len returns the number of keys held, including expired keys not yet
// evicted.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

func (m *MemoryBackend) now() time.Time {
	if m.nowFunc != nil {
		return m.nowFunc()
	}
	return time.Now()
}
