// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the session and end it at the provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, _, cleanup, err := newManager(cmd)
		if err != nil {
			return err
		}
		// cleanup waits for the revocation
		defer cleanup()
		if err := m.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}
