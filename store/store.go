// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package store provides the tiered token store.  The short-lived tier holds
// the access token, the id_token and a sanitized user snapshot for the life of
// the process.  The durable tier holds only the refresh token.
//
// A Store never returns a storage error: failures are logged and treated as a
// cache miss, so authentication degrades to renew or re-login.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

const (
	keyRecord  = "access"
	keyUser    = "user"
	keyRefresh = "refresh"
)

// Record is the short-lived tier's token record.
type Record struct {
	AccessToken string    `json:"access_token"`
	IdToken     string    `json:"id_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Scopes      []string  `json:"scopes,omitempty"`
}

// UserSnapshot is an allow-listed projection of identity claims for quick
// reads.  It never holds a token.
type UserSnapshot struct {
	ID              string   `json:"id,omitempty"`
	Username        string   `json:"username,omitempty"`
	Email           string   `json:"email,omitempty"`
	FirstName       string   `json:"firstName,omitempty"`
	LastName        string   `json:"lastName,omitempty"`
	DisplayName     string   `json:"displayName,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	IsAuthenticated bool     `json:"isAuthenticated"`
}

// Store is the tiered token store.  It's safe for concurrent use.
type Store struct {
	short   Backend
	durable Backend
	logger  hclog.Logger
	margin  time.Duration
	prefix  string
	nowFunc func() time.Time

	// shortInvalid is set when a short-lived write fails, so whatever is
	// left in the tier is never served.
	shortInvalid atomic.Bool
}

// New creates a Store over the short-lived and durable backends.
//
// Supported options: WithLogger, WithNow, WithSafetyMargin, WithKeyPrefix
func New(short, durable Backend, opt ...Option) (*Store, error) {
	const op = "store.New"
	if short == nil {
		return nil, fmt.Errorf("%s: short-lived backend is nil: %w", op, ErrInvalidParameter)
	}
	if durable == nil {
		return nil, fmt.Errorf("%s: durable backend is nil: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	return &Store{
		short:   short,
		durable: durable,
		logger:  opts.withLogger,
		margin:  opts.withSafetyMargin,
		prefix:  opts.withKeyPrefix,
		nowFunc: opts.withNowFunc,
	}, nil
}

// SafetyMargin returns the margin applied to short-lived expiry checks.
func (s *Store) SafetyMargin() time.Duration { return s.margin }

// ShortLivedHealthy reports whether the short-lived tier can be trusted: it's
// false after a failed write until a later write succeeds.  It does no I/O.
func (s *Store) ShortLivedHealthy() bool { return !s.shortInvalid.Load() }

// SetShortLived writes the record, expiring in expiresIn.  If the write
// fails, the tier is evicted.
func (s *Store) SetShortLived(ctx context.Context, r Record, expiresIn time.Duration) {
	const op = "Store.SetShortLived"
	if r.ExpiresAt.IsZero() {
		r.ExpiresAt = s.now().Add(expiresIn)
	}
	b, err := json.Marshal(r)
	if err == nil {
		err = s.short.Store(ctx, s.key(keyRecord), b, expiresIn)
	}
	if err != nil {
		s.shortInvalid.Store(true)
		s.logger.Error("unable to write short-lived record, evicting", "op", op, "error", fmt.Errorf("%w: %s", ErrStorage, err))
		if derr := s.short.Delete(ctx, s.key(keyRecord)); derr != nil {
			s.logger.Error("unable to evict short-lived record", "op", op, "error", derr)
		}
		return
	}
	s.shortInvalid.Store(false)
}

// ShortLived returns the record if it's still usable after the safety
// margin; otherwise nil.  An expired record is cleared.
func (s *Store) ShortLived(ctx context.Context) *Record {
	const op = "Store.ShortLived"
	if s.shortInvalid.Load() {
		return nil
	}
	b, ok := s.load(ctx, op, s.short, keyRecord)
	if !ok {
		return nil
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil || r.AccessToken == "" {
		s.logger.Warn("discarding unreadable short-lived record", "op", op)
		s.clearShort(ctx, op)
		return nil
	}
	if !r.ExpiresAt.After(s.now().Add(s.margin)) {
		s.clearShort(ctx, op)
		return nil
	}
	return &r
}

// SetDurable writes the refresh token.
func (s *Store) SetDurable(ctx context.Context, refreshToken string) {
	const op = "Store.SetDurable"
	if refreshToken == "" {
		s.ClearDurable(ctx)
		return
	}
	if err := s.durable.Store(ctx, s.key(keyRefresh), []byte(refreshToken), 0); err != nil {
		s.logger.Error("unable to write durable record", "op", op, "error", fmt.Errorf("%w: %s", ErrStorage, err))
	}
}

// Durable returns the refresh token or "".
func (s *Store) Durable(ctx context.Context) string {
	const op = "Store.Durable"
	b, ok := s.load(ctx, op, s.durable, keyRefresh)
	if !ok {
		return ""
	}
	return string(b)
}

// ClearDurable removes the refresh token.
func (s *Store) ClearDurable(ctx context.Context) {
	const op = "Store.ClearDurable"
	if err := s.durable.Delete(ctx, s.key(keyRefresh)); err != nil {
		s.logger.Error("unable to clear durable record", "op", op, "error", fmt.Errorf("%w: %s", ErrStorage, err))
	}
}

// SetUserSnapshot stores the allow-listed projection of the identity claims.
func (s *Store) SetUserSnapshot(ctx context.Context, claims map[string]interface{}) {
	const op = "Store.SetUserSnapshot"
	b, err := json.Marshal(NewUserSnapshot(claims))
	if err == nil {
		err = s.short.Store(ctx, s.key(keyUser), b, 0)
	}
	if err != nil {
		s.logger.Error("unable to write user snapshot", "op", op, "error", fmt.Errorf("%w: %s", ErrStorage, err))
	}
}

// UserSnapshot returns the stored snapshot or nil.
func (s *Store) UserSnapshot(ctx context.Context) *UserSnapshot {
	const op = "Store.UserSnapshot"
	b, ok := s.load(ctx, op, s.short, keyUser)
	if !ok {
		return nil
	}
	var u UserSnapshot
	if err := json.Unmarshal(b, &u); err != nil {
		s.logger.Warn("discarding unreadable user snapshot", "op", op)
		return nil
	}
	return &u
}

// ClearAll removes everything from both tiers.  It's safe to call any number
// of times.
func (s *Store) ClearAll(ctx context.Context) {
	const op = "Store.ClearAll"
	var result *multierror.Error
	shortFailed := false
	for _, k := range []string{keyRecord, keyUser} {
		if err := s.short.Delete(ctx, s.key(k)); err != nil {
			shortFailed = true
			result = multierror.Append(result, err)
		}
	}
	if err := s.durable.Delete(ctx, s.key(keyRefresh)); err != nil {
		result = multierror.Append(result, err)
	}
	s.shortInvalid.Store(shortFailed)
	if err := result.ErrorOrNil(); err != nil {
		s.logger.Error("unable to clear all records", "op", op, "error", fmt.Errorf("%w: %s", ErrStorage, err))
	}
}

func (s *Store) clearShort(ctx context.Context, op string) {
	for _, k := range []string{keyRecord, keyUser} {
		if err := s.short.Delete(ctx, s.key(k)); err != nil {
			s.shortInvalid.Store(true)
			s.logger.Error("unable to evict short-lived record", "op", op, "error", err)
		}
	}
}

func (s *Store) load(ctx context.Context, op string, b Backend, k string) ([]byte, bool) {
	v, err := b.Load(ctx, s.key(k))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, false
	case err != nil:
		s.logger.Error("unable to read record", "op", op, "key", k, "error", fmt.Errorf("%w: %s", ErrStorage, err))
		return nil, false
	}
	return v, true
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

// NewUserSnapshot projects the allow-listed identity fields from claims.
// Both OIDC standard claim names and the application's camelCase names are
// recognized.
func NewUserSnapshot(claims map[string]interface{}) UserSnapshot {
	return UserSnapshot{
		ID:              firstString(claims, "sub", "id"),
		Username:        firstString(claims, "preferred_username", "username"),
		Email:           firstString(claims, "email"),
		FirstName:       firstString(claims, "given_name", "firstName"),
		LastName:        firstString(claims, "family_name", "lastName"),
		DisplayName:     firstString(claims, "name", "displayName"),
		Roles:           claimStrings(claims, "roles", "role", "authorities"),
		IsAuthenticated: len(claims) > 0,
	}
}

func firstString(claims map[string]interface{}, names ...string) string {
	for _, n := range names {
		if s, ok := claims[n].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func claimStrings(claims map[string]interface{}, names ...string) []string {
	var out []string
	for _, n := range names {
		switch v := claims[n].(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case []string:
			out = append(out, v...)
		case []interface{}:
			for _, e := range v {
				if s, ok := e.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
