// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"
	sdkhttp "github.com/oauthlab/authsession/sdk/http"
)

// Authenticator supplies access tokens and reacts to rejected ones.
// *session.Manager implements it.
type Authenticator interface {
	// AccessToken returns the current token or "" without a usable session.
	// It must not block on the network.
	AccessToken() string

	// RenewSilently renews the session's tokens.
	RenewSilently(ctx context.Context) error

	// Unauthorized forces a local logout.
	Unauthorized(ctx context.Context, cause error)
}

// Policy decides what a 401 from a resource server does.
type Policy int

const (
	// PolicyRenewThenLogout renews once and retries; if the retry is still
	// rejected and the local token is expired or gone, the session is logged
	// out through Authenticator.Unauthorized.
	PolicyRenewThenLogout Policy = iota

	// PolicySignalOnly only reports the 401 to the OnAuthRequired hook.
	PolicySignalOnly
)

// String returns the policy's name.
func (p Policy) String() string {
	switch p {
	case PolicyRenewThenLogout:
		return "renew-then-logout"
	case PolicySignalOnly:
		return "signal-only"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// drainLimit caps how much of a rejected response is read before its
// connection is reused.
const drainLimit = 4 << 10

// Transport is an http.RoundTripper which sets the Authorization header from
// Auth on every request.  The token is read at dispatch time, so a renewal
// that lands between two requests is picked up by the second one.
type Transport struct {
	// Base sends the requests.  http.DefaultTransport is used when nil.
	Base http.RoundTripper

	// Auth supplies the tokens.  Required.
	Auth Authenticator

	// Policy is applied to 401 responses.
	Policy Policy

	// Logger is optional.
	Logger hclog.Logger

	// OnAuthRequired is optional.  It's called with an error wrapping
	// ErrAuthenticationRequired when a 401 is returned to the caller.
	OnAuthRequired func(*http.Request, error)
}

// New creates a Transport.
//
// Supported options: WithBase, WithProviderCA, WithPolicy, WithLogger,
// WithOnAuthRequired
func New(auth Authenticator, opt ...Option) (*Transport, error) {
	const op = "transport.New"
	if auth == nil {
		return nil, fmt.Errorf("%s: authenticator is nil: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	base := opts.withBase
	if base == nil {
		tr, err := sdkhttp.NewTransport(opts.withProviderCA)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		base = tr
	}
	return &Transport{
		Base:           base,
		Auth:           auth,
		Policy:         opts.withPolicy,
		Logger:         opts.withLogger,
		OnAuthRequired: opts.withOnAuthRequired,
	}, nil
}

// NewClient returns an *http.Client using a Transport for auth.  See New for
// the supported options.
func NewClient(auth Authenticator, opt ...Option) (*http.Client, error) {
	const op = "transport.NewClient"
	t, err := New(auth, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &http.Client{Transport: t}, nil
}

// RoundTrip implements http.RoundTripper.
//
// For a 401 under PolicyRenewThenLogout: if the session's token changed since
// the request was sent, the request is retried once with the new token.
// Otherwise one renewal is attempted and the request is retried if its body
// can be replayed.  A 401 that survives is returned to the caller; the
// session is logged out only when its token is expired or gone by then.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	const op = "Transport.RoundTrip"
	if t.Auth == nil {
		closeBody(req)
		return nil, fmt.Errorf("%s: authenticator is nil: %w", op, ErrInvalidParameter)
	}
	sent := t.Auth.AccessToken()
	resp, err := t.send(req, req, sent)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	ctx := req.Context()
	cause := fmt.Errorf("%s: %s %s: %w", op, req.Method, req.URL.Redacted(), ErrAuthenticationRequired)
	if t.Policy == PolicySignalOnly || (sent == "" && t.Auth.AccessToken() == "") {
		t.signal(req, cause)
		return resp, nil
	}

	current := t.Auth.AccessToken()
	var renewErr error
	if current == "" || current == sent {
		if renewErr = t.Auth.RenewSilently(ctx); renewErr == nil {
			current = t.Auth.AccessToken()
		}
	}
	if renewErr == nil && current != "" && current != sent {
		if retry, ok := replay(req); ok {
			t.logger().Debug("retrying with renewed token", "op", op, "url", req.URL.Redacted())
			drain(resp)
			resp, err = t.send(req, retry, current)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}
		}
	}

	if renewErr != nil {
		cause = fmt.Errorf("%w: %w", cause, renewErr)
	}
	if t.Auth.AccessToken() == "" {
		t.logger().Warn("session rejected by resource server", "op", op, "url", req.URL.Redacted())
		t.Auth.Unauthorized(ctx, cause)
	}
	t.signal(req, cause)
	return resp, nil
}

// send dispatches a copy of r carrying token.  orig is the caller's request,
// which must not be modified.
func (t *Transport) send(orig, r *http.Request, token string) (*http.Response, error) {
	out := r
	if r == orig {
		out = r.Clone(r.Context())
	}
	out.Header.Del("Authorization")
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base().RoundTrip(out)
}

func (t *Transport) signal(req *http.Request, err error) {
	if t.OnAuthRequired != nil {
		t.OnAuthRequired(req, err)
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() hclog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return hclog.NewNullLogger()
}

// replay returns a copy of req with a fresh body, or false when the body
// can't be read again.
func replay(req *http.Request) (*http.Request, bool) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	r.Body = body
	return r, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
