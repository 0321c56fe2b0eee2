// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTestQuotaExceeded is returned by a FailingBackend.
var ErrTestQuotaExceeded = errors.New("quota exceeded")

// FailingBackend wraps a Backend and fails the selected operations.  It's
// useful for testing storage failure handling.
type FailingBackend struct {
	Backend

	mu         sync.Mutex
	failStore  bool
	failLoad   bool
	failDelete bool
}

// NewFailingBackend wraps b.  No operation fails until configured.
func NewFailingBackend(b Backend) *FailingBackend {
	return &FailingBackend{Backend: b}
}

// FailStores toggles Store failures.
func (f *FailingBackend) FailStores(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStore = fail
}

// FailLoads toggles Load failures.
func (f *FailingBackend) FailLoads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLoad = fail
}

// FailDeletes toggles Delete failures.
func (f *FailingBackend) FailDeletes(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = fail
}

// Load implements Backend.Load.
func (f *FailingBackend) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failLoad
	f.mu.Unlock()
	if fail {
		return nil, ErrTestQuotaExceeded
	}
	return f.Backend.Load(ctx, key)
}

// Store implements Backend.Store.
func (f *FailingBackend) Store(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	f.mu.Lock()
	fail := f.failStore
	f.mu.Unlock()
	if fail {
		return ErrTestQuotaExceeded
	}
	return f.Backend.Store(ctx, key, val, ttl)
}

// Delete implements Backend.Delete.
func (f *FailingBackend) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return ErrTestQuotaExceeded
	}
	return f.Backend.Delete(ctx, key)
}
