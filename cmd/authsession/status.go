// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oauthlab/authsession/session"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, _, cleanup, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		printStatus(cmd.OutOrStdout(), m.Status(), m.Session())
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the current access token",
	Long: `Print the current access token.  A session whose access token has
expired is renewed with the stored refresh token.  Exits with status 2 when
there's no session.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, _, cleanup, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		tk := m.AccessToken()
		if tk == "" {
			return errAuthRequired
		}
		fmt.Fprintln(cmd.OutOrStdout(), tk)
		return nil
	},
}

var whoamiRole string

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show who is logged in",
	Long: `Show who is logged in and their roles.  With --role, exit with status 1
unless the session has the role.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, _, cleanup, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		s := m.Session()
		if s == nil {
			return errAuthRequired
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Subject:  %s\n", s.Subject)
		fmt.Fprintf(out, "Name:     %s\n", displayName(s))
		if s.Email != "" {
			fmt.Fprintf(out, "Email:    %s\n", s.Email)
		}
		fmt.Fprintf(out, "Roles:    %s\n", strings.Join(s.Roles, ", "))
		fmt.Fprintf(out, "Admin:    %t\n", m.IsAdmin())
		if whoamiRole != "" && !m.HasRole(whoamiRole) {
			return fmt.Errorf("whoami: missing role %q", whoamiRole)
		}
		return nil
	},
}

func init() {
	whoamiCmd.Flags().StringVar(&whoamiRole, "role", "", "require this role")
}

func printStatus(w io.Writer, st session.Status, s *session.Session) {
	fmt.Fprintf(w, "State:    %s\n", st.State)
	if st.Err != nil {
		fmt.Fprintf(w, "Error:    %s\n", st.Err)
	}
	if s == nil {
		return
	}
	fmt.Fprintf(w, "User:     %s\n", displayName(s))
	fmt.Fprintf(w, "Expires:  %s (in %s)\n", s.Expiry.Format(time.RFC3339), time.Until(s.Expiry).Round(time.Second))
	fmt.Fprintf(w, "Renew:    %t\n", s.CanRefresh)
	fmt.Fprintf(w, "Scopes:   %s\n", strings.Join(s.Scopes, " "))
}
