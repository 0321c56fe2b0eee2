// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Backend when a key has no value (or its
	// value expired).
	ErrNotFound = errors.New("not found")

	// ErrStorage classifies a failed storage operation.  The Store logs it
	// and treats it as a miss; it's never returned by Store methods.
	ErrStorage = errors.New("storage failure")

	ErrInvalidParameter = errors.New("invalid parameter")
)

// Backend is a key/value capability with a distinct lifetime contract.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns the value for the key or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Store sets the value for the key.  A ttl of zero means the value doesn't
	// expire on its own.
	Store(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Delete removes the key.  Deleting a missing key isn't an error.
	Delete(ctx context.Context, key string) error
}
