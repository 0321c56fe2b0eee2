// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transport

import "errors"

var (
	// ErrAuthenticationRequired is signaled when a resource server keeps
	// rejecting a request with 401 after the 401 policy has run.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrInvalidParameter is returned for missing or invalid arguments.
	ErrInvalidParameter = errors.New("invalid parameter")
)
