// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrNilParameter              = errors.New("nil parameter")
	ErrInvalidCACert             = errors.New("invalid CA certificate")
	ErrInvalidIssuer             = errors.New("invalid issuer")
	ErrIdGeneratorFailed         = errors.New("id generation failed")
	ErrExpiredRequest            = errors.New("request is expired")
	ErrInvalidResponseState      = errors.New("invalid response state")
	ErrMissingIdToken            = errors.New("id_token is missing")
	ErrMissingAccessToken        = errors.New("access_token is missing")
	ErrMissingRefreshToken       = errors.New("refresh_token is missing")
	ErrIdTokenVerificationFailed = errors.New("id_token verification failed")
	ErrInvalidAudience           = errors.New("invalid audience")
	ErrInvalidNonce              = errors.New("invalid nonce")
	ErrInvalidSubject            = errors.New("invalid subject")
	ErrNotFound                  = errors.New("not found")
	ErrLoginFailed               = errors.New("login failed")
	ErrUserInfoFailed            = errors.New("user info failed")
	ErrUnsupportedAlg            = errors.New("unsupported signing algorithm")
	ErrUnsupportedResponseType   = errors.New("unsupported response type")
	ErrUnsupportedChallenge      = errors.New("unsupported code challenge method")
	ErrMalformedToken            = errors.New("malformed token")
	ErrRevocationFailed          = errors.New("token revocation failed")
)
