// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/oauthlab/authsession/oidc"
	"golang.org/x/oauth2"
)

// Adapter is the OIDC client the Manager drives.  *oidc.Provider implements
// it.
type Adapter interface {
	BeginAuth(ctx context.Context, opt ...oidc.Option) (string, oidc.Request, error)
	TakeRequest(state string) (oidc.Request, error)
	Exchange(ctx context.Context, r oidc.Request, state string, code string) (*oidc.Tk, error)
	Refresh(ctx context.Context, rt oidc.RefreshToken) (*oidc.Tk, error)
	UserInfo(ctx context.Context, ts oauth2.TokenSource, claims interface{}) error
	EndSessionURL(idTokenHint oidc.IdToken) (string, error)
	Revoke(ctx context.Context, at oidc.AccessToken) error
	Done()
}

var _ Adapter = (*oidc.Provider)(nil)

// ProviderFactory constructs the Manager's Adapter.  It's called at most
// once successfully.
type ProviderFactory func(ctx context.Context, c *oidc.Config) (Adapter, error)

// NewOIDCProvider is the default ProviderFactory.
func NewOIDCProvider(_ context.Context, c *oidc.Config) (Adapter, error) {
	p, err := oidc.NewProvider(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Navigator sends the user agent to a URL: the authorization endpoint on
// login and the end session endpoint on logout.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a func to a Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// BrowserNavigator opens URLs in the system's default browser.
type BrowserNavigator struct{}

// Navigate starts the platform's URL opener without waiting for it.
func (BrowserNavigator) Navigate(_ context.Context, url string) error {
	const op = "BrowserNavigator.Navigate"
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("%s: unsupported platform %s", op, runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: unable to open browser: %w", op, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
