// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"net/http"

	"github.com/oauthlab/authsession/oidc"
	"github.com/oauthlab/authsession/session"
)

// LoginCompleter finishes authorization code flows.  *session.Manager
// implements it.
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, state, code string) (*session.Session, error)
	AbortLogin(ctx context.Context, state string, authErr error) error
}

// SilentRenewCompleter finishes prompt=none renewals.  *session.Manager
// implements it.
type SilentRenewCompleter interface {
	CompleteSilentRenew(ctx context.Context, state, code string) (*session.Session, error)
	AbortSilentRenew(ctx context.Context, state string, authErr error) error
}

// Login creates the authorization code callback handler for the redirect
// target.  The request's "state" and "code" parameters are passed to
// lc.CompleteLogin, and an authentication error response is passed to
// lc.AbortLogin.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func Login(lc LoginCompleter, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.Login"
	switch {
	case lc == nil:
		return nil, fmt.Errorf("%s: login completer is nil: %w", op, oidc.ErrNilParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrNilParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrNilParameter)
	}
	return handler(lc.CompleteLogin, lc.AbortLogin, sFn, eFn), nil
}

// SilentRenew creates the callback handler for the silent redirect target.
// It works like Login, using sc.CompleteSilentRenew and sc.AbortSilentRenew.
func SilentRenew(sc SilentRenewCompleter, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.SilentRenew"
	switch {
	case sc == nil:
		return nil, fmt.Errorf("%s: silent renew completer is nil: %w", op, oidc.ErrNilParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrNilParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrNilParameter)
	}
	return handler(sc.CompleteSilentRenew, sc.AbortSilentRenew, sFn, eFn), nil
}

type completeFunc func(ctx context.Context, state, code string) (*session.Session, error)

type abortFunc func(ctx context.Context, state string, authErr error) error

func handler(complete completeFunc, abort abortFunc, sFn SuccessResponseFunc, eFn ErrorResponseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found.
		reqState := req.FormValue("state")

		if code := req.FormValue("error"); code != "" {
			reqError := &AuthenErrorResponse{
				Code:        code,
				Description: req.FormValue("error_description"),
				Uri:         req.FormValue("error_uri"),
			}
			err := abort(req.Context(), reqState, reqError)
			eFn(reqState, reqError, err, w, req)
			return
		}
		s, err := complete(req.Context(), reqState, req.FormValue("code"))
		if err != nil {
			eFn(reqState, nil, err, w, req)
			return
		}
		sFn(reqState, s, w, req)
	}
}
