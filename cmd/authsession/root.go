// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/oauthlab/authsession/config"
	"github.com/oauthlab/authsession/session"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
)

// errAuthRequired is returned by commands which need a session when there's
// none.
var errAuthRequired = errors.New("not logged in: run authsession login")

var (
	envFiles  []string
	logLevel  string
	noBrowser bool
)

var rootCmd = &cobra.Command{
	Use:   "authsession",
	Short: "Log in to an OIDC provider and call APIs with the session",
	Long: `authsession keeps an OIDC session for the command line.

Settings are read from AUTHSESSION_* environment variables and from .env
files, for example:

  AUTHSESSION_AUTHORITY=https://idp.example.com/realms/demo
  AUTHSESSION_CLIENT_ID=cli
  AUTHSESSION_REDIRECT_URL=http://127.0.0.1:8250/callback`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to read settings from")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "print URLs instead of opening a browser")

	rootCmd.AddCommand(loginCmd, statusCmd, tokenCmd, whoamiCmd, logoutCmd, callCmd)
}

// Execute runs the root command and exits with a status code.
func Execute(version string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(`{{printf "authsession version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, errAuthRequired):
		return ExitCodeAuthRequired
	default:
		return ExitCodeError
	}
}

func newLogger(w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "authsession",
		Level:  hclog.LevelFromString(logLevel),
		Output: w,
	})
}

// printNavigator writes URLs instead of opening them.
func printNavigator(w io.Writer) session.Navigator {
	return session.NavigatorFunc(func(_ context.Context, u string) error {
		_, err := fmt.Fprintf(w, "Open this URL to continue:\n\n    %s\n\n", u)
		return err
	})
}

// newManager loads the settings and returns a started manager and its
// cleanup func.
func newManager(cmd *cobra.Command) (*session.Manager, *config.Settings, func(), error) {
	const op = "newManager"
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())

	settings, err := config.Load(config.WithEnvFiles(envFiles...))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := settings.OIDCConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	st, closeStore, err := settings.NewStore(config.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	extractor, err := settings.ClaimsExtractor(ctx)
	if err != nil {
		_ = closeStore()
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	var nav session.Navigator = session.BrowserNavigator{}
	if noBrowser {
		nav = printNavigator(cmd.ErrOrStderr())
	}
	m, err := session.NewManager(c, st,
		session.WithLogger(logger.Named("session")),
		session.WithNavigator(nav),
		session.WithNormalizer(settings.Normalizer()),
		session.WithClaimsExtractor(extractor),
	)
	if err != nil {
		_ = closeStore()
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	cleanup := func() {
		m.Done()
		if err := closeStore(); err != nil {
			logger.Warn("unable to close store", "error", err)
		}
	}
	if err := m.Start(ctx); err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, settings, cleanup, nil
}
