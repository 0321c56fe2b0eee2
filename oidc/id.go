// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/oauthlab/authsession/sdk/id"
)

// NewID generates a ID with an optional prefix.  The ID generated is suitable
// for a Request's State or Nonce
func NewID(optionalPrefix string) (string, error) {
	const op = "NewID"
	v, err := id.New(optionalPrefix)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIdGeneratorFailed)
	}
	return v, nil
}
