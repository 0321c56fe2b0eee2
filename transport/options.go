// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transport

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
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
	withBase           http.RoundTripper
	withProviderCA     string
	withPolicy         Policy
	withLogger         hclog.Logger
	withOnAuthRequired func(*http.Request, error)
}

func optsDefaults() options {
	return options{
		withPolicy: PolicyRenewThenLogout,
		withLogger: hclog.NewNullLogger(),
	}
}

func getOpts(opt ...Option) options {
	opts := optsDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithBase provides the RoundTripper requests are sent with.  The default is
// a pooled transport.
func WithBase(rt http.RoundTripper) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withBase = rt
		}
	}
}

// WithProviderCA provides an optional CA certificate PEM for the default
// pooled transport.  It's ignored when WithBase is used.
func WithProviderCA(caPEM string) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withProviderCA = caPEM
		}
	}
}

// WithPolicy sets the 401 policy.
func WithPolicy(p Policy) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withPolicy = p
		}
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

// WithOnAuthRequired registers a hook which is called with an error wrapping
// ErrAuthenticationRequired whenever a 401 survives the policy.
func WithOnAuthRequired(fn func(*http.Request, error)) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withOnAuthRequired = fn
		}
	}
}
