// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"sync"
)

// RequestCache holds pending Requests keyed by their state.  A Request can be
// taken at most once, which makes the cache the replay boundary for
// authorization callbacks.
type RequestCache struct {
	mu      sync.Mutex
	pending map[string]Request
}

// NewRequestCache creates an empty cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{
		pending: map[string]Request{},
	}
}

// Add stores the request.  Expired requests are purged as a side effect.
func (c *RequestCache) Add(r Request) error {
	const op = "RequestCache.Add"
	if r == nil {
		return fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == "" {
		return fmt.Errorf("%s: request state is empty: %w", op, ErrInvalidParameter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.pending {
		if v.IsExpired() {
			delete(c.pending, k)
		}
	}
	c.pending[r.State()] = r
	return nil
}

// Take removes and returns the request for the state.  It returns
// ErrNotFound if no request was issued for the state (or it was already
// taken) and ErrExpiredRequest if the request has expired.
func (c *RequestCache) Take(state string) (Request, error) {
	const op = "RequestCache.Take"
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrNotFound)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.pending[state]
	if !ok {
		return nil, fmt.Errorf("%s: no pending request for state: %w", op, ErrNotFound)
	}
	delete(c.pending, state)
	if r.IsExpired() {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredRequest)
	}
	return r, nil
}

// Len returns the number of pending requests.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Clear drops every pending request.
func (c *RequestCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = map[string]Request{}
}
