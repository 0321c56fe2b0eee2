// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/oauthlab/authsession/oidc/callback"
	"github.com/oauthlab/authsession/session"
	"github.com/spf13/cobra"
)

const successHTML = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body><p>You're signed in. You can close this window.</p></body>
</html>
`

var loginTimeout time.Duration

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with the authorization code flow",
	Long: `Log in with the authorization code flow and PKCE.

A local server listens on the configured redirect URL for the callback,
so the redirect URL must point at this machine (for example
http://127.0.0.1:8250/callback).`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the callback")
}

type loginResult struct {
	s   *session.Session
	err error
}

func runLogin(cmd *cobra.Command, _ []string) error {
	const op = "login"
	m, settings, cleanup, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	redirect, err := url.Parse(settings.RedirectURL)
	if err != nil {
		return fmt.Errorf("%s: invalid redirect url: %w", op, err)
	}

	resultCh := make(chan loginResult, 1)
	handler, err := callback.Login(m,
		func(_ string, s *session.Session, w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(successHTML))
			report(resultCh, loginResult{s: s})
		},
		func(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			callback.ErrorPage("")(state, r, e, w, req)
			// a replayed or unknown state is not the flow we started
			if errors.Is(e, session.ErrStateMismatch) && r == nil {
				return
			}
			report(resultCh, loginResult{err: e})
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	mux := http.NewServeMux()
	mux.Handle(redirect.Path, handler)
	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("%s: unable to listen for the callback: %w", op, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	srvCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if err := m.Login(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Complete the login in your browser.")

	select {
	case res := <-resultCh:
		if res.err != nil {
			return fmt.Errorf("%s: %w", op, res.err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(res.s))
		return nil
	case err := <-srvCh:
		return fmt.Errorf("%s: callback server: %w", op, err)
	case <-ctx.Done():
		return fmt.Errorf("%s: interrupted", op)
	case <-time.After(loginTimeout):
		return fmt.Errorf("%s: timed out waiting for the callback", op)
	}
}

// report keeps the first result; later callbacks are answered but ignored.
func report(ch chan<- loginResult, res loginResult) {
	select {
	case ch <- res:
	default:
	}
}

func displayName(s *session.Session) string {
	switch {
	case s == nil:
		return ""
	case s.DisplayName != "":
		return s.DisplayName
	case s.Username != "":
		return s.Username
	case s.Email != "":
		return s.Email
	default:
		return s.Subject
	}
}
