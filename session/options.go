// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/oauthlab/authsession/authz"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

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

type options struct {
	withLogger          hclog.Logger
	withNavigator       Navigator
	withProviderFactory ProviderFactory
	withNowFunc         func() time.Time
	withNormalizer      *authz.Normalizer
	withExtractor       *authz.ClaimsExtractor
	withSafetyMargin    *time.Duration
}

func optsDefaults() options {
	return options{
		withLogger:          hclog.NewNullLogger(),
		withNavigator:       BrowserNavigator{},
		withProviderFactory: NewOIDCProvider,
	}
}

func getOpts(opt ...Option) options {
	opts := optsDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithNavigator overrides the default BrowserNavigator.
func WithNavigator(n Navigator) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && n != nil {
			v.withNavigator = n
		}
	}
}

// WithProviderFactory overrides how the Adapter is constructed.
func WithProviderFactory(f ProviderFactory) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && f != nil {
			v.withProviderFactory = f
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

// WithNormalizer overrides the role Normalizer.
func WithNormalizer(n *authz.Normalizer) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && n != nil {
			v.withNormalizer = n
		}
	}
}

// WithClaimsExtractor overrides the role ClaimsExtractor.
func WithClaimsExtractor(e *authz.ClaimsExtractor) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && e != nil {
			v.withExtractor = e
		}
	}
}

// WithSafetyMargin overrides the margin applied to session expiry.  It
// defaults to the store's margin.
func WithSafetyMargin(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && d >= 0 {
			v.withSafetyMargin = &d
		}
	}
}
