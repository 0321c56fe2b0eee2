// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import "github.com/hashicorp/go-hclog"

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
	withEnvFiles    []string
	withEnvironment map[string]string
	withPrefix      string
	withLogger      hclog.Logger
}

func optsDefaults() options {
	return options{
		withEnvFiles: []string{".env"},
		withPrefix:   DefaultEnvPrefix,
		withLogger:   hclog.NewNullLogger(),
	}
}

func getOpts(opt ...Option) options {
	opts := optsDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithEnvFiles replaces the dotenv files read by Load.  Missing files are
// skipped.
func WithEnvFiles(files ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withEnvFiles = files
		}
	}
}

// WithEnvironment replaces the process environment read by Load.
func WithEnvironment(environ map[string]string) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withEnvironment = environ
		}
	}
}

// WithPrefix replaces DefaultEnvPrefix.
func WithPrefix(p string) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withPrefix = p
		}
	}
}

// WithLogger provides an optional logger.  NewStore passes it on to the
// store.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && l != nil {
			v.withLogger = l
		}
	}
}
