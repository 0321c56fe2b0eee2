// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"strings"

	"gopkg.in/square/go-jose.v2/jwt"
)

// IsJWT reports whether the token has the compact JWS shape.  Opaque access
// tokens return false.
func IsJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying its signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if !IsJWT(rawToken) {
		return fmt.Errorf("%s: token is not a JWT: %w", op, ErrMalformedToken)
	}
	parsed, err := jwt.ParseSigned(rawToken)
	if err != nil {
		return fmt.Errorf("%s: unable to parse JWT (%s): %w", op, err, ErrMalformedToken)
	}
	if err := parsed.UnsafeClaimsWithoutVerification(claims); err != nil {
		return fmt.Errorf("%s: unable to decode JWT claims (%s): %w", op, err, ErrMalformedToken)
	}
	return nil
}
