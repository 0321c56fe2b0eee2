// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultSafetyMargin is subtracted from a short-lived record's expiry before
// it's considered usable, so a token never expires mid-flight.
const DefaultSafetyMargin = 30 * time.Second

// DefaultKeyPrefix namespaces the keys written to backends.
const DefaultKeyPrefix = "authsession."

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type options struct {
	withLogger        hclog.Logger
	withNowFunc       func() time.Time
	withSafetyMargin  time.Duration
	withKeyPrefix     string
	withEncryptionKey []byte
}

func optsDefaults() options {
	return options{
		withLogger:       hclog.NewNullLogger(),
		withSafetyMargin: DefaultSafetyMargin,
		withKeyPrefix:    DefaultKeyPrefix,
	}
}

// getOpts gets the defaults and applies the opt overrides passed in.
func getOpts(opt ...Option) options {
	opts := optsDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && now != nil {
			v.withNowFunc = now
		}
	}
}

// WithSafetyMargin overrides the 30s safety margin.
func WithSafetyMargin(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && d >= 0 {
			v.withSafetyMargin = d
		}
	}
}

// WithKeyPrefix overrides the key prefix.
func WithKeyPrefix(p string) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withKeyPrefix = p
		}
	}
}

// WithEncryptionKey provides a 32 byte key used by a FileBackend to encrypt
// values at rest.
func WithEncryptionKey(k []byte) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && len(k) > 0 {
			v.withEncryptionKey = k
		}
	}
}
