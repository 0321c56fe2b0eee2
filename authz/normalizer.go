// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authz

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultRolePrefix is the prefix used by issuers following the Spring
// Security convention.
const DefaultRolePrefix = "ROLE_"

// Normalizer maps role names onto a canonical form so "ROLE_ADMIN", "ADMIN"
// and (when case insensitive) "admin" compare equal.
type Normalizer struct {
	prefix          string
	caseInsensitive bool
}

type normalizerOptions struct {
	withPrefix          string
	withCaseInsensitive bool
}

func normalizerDefaults() normalizerOptions {
	return normalizerOptions{
		withPrefix:          DefaultRolePrefix,
		withCaseInsensitive: true,
	}
}

// NewNormalizer creates a Normalizer.  By default it strips DefaultRolePrefix
// and folds case.
//
// Supported options: WithPrefix, WithCaseInsensitive
func NewNormalizer(opt ...Option) *Normalizer {
	opts := normalizerDefaults()
	ApplyOpts(&opts, opt...)
	return &Normalizer{
		prefix:          opts.withPrefix,
		caseInsensitive: opts.withCaseInsensitive,
	}
}

// Normalize returns the canonical form of the role.
func (n *Normalizer) Normalize(role string) string {
	r := strings.TrimSpace(role)
	prefix := n.prefix
	if n.caseInsensitive {
		// a Caser is stateful, so each call gets its own.
		r = cases.Fold().String(r)
		prefix = cases.Fold().String(prefix)
	}
	if prefix != "" {
		r = strings.TrimPrefix(r, prefix)
	}
	return r
}

// Equal reports whether a and b name the same role.  Empty roles never match.
func (n *Normalizer) Equal(a, b string) bool {
	na, nb := n.Normalize(a), n.Normalize(b)
	return na != "" && na == nb
}

// Contains reports whether roles includes role.
func (n *Normalizer) Contains(roles []string, role string) bool {
	for _, r := range roles {
		if n.Equal(r, role) {
			return true
		}
	}
	return false
}
