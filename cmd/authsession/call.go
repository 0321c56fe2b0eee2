// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oauthlab/authsession/transport"
	"github.com/spf13/cobra"
)

var (
	callMethod  string
	callData    string
	callHeaders []string
	callSignal  bool
)

var callCmd = &cobra.Command{
	Use:   "call URL",
	Short: "Call an API with the session's access token",
	Long: `Call an API with the session's access token and print the response body.

A 401 response renews the session once and retries.  If the API still
rejects the request and the session can't be renewed, the session is
logged out.  --signal-only reports the 401 without renewing.`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callMethod, "method", "X", http.MethodGet, "request method")
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "request body")
	callCmd.Flags().StringArrayVarP(&callHeaders, "header", "H", nil, "request header as Name: value")
	callCmd.Flags().BoolVar(&callSignal, "signal-only", false, "don't renew or log out on 401")
}

func runCall(cmd *cobra.Command, args []string) error {
	const op = "call"
	m, settings, cleanup, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	if m.AccessToken() == "" {
		return errAuthRequired
	}

	policy := transport.PolicyRenewThenLogout
	if callSignal {
		policy = transport.PolicySignalOnly
	}
	ca, err := settings.CA()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var authErr error
	client, err := transport.NewClient(m,
		transport.WithPolicy(policy),
		transport.WithProviderCA(ca),
		transport.WithLogger(newLogger(cmd.ErrOrStderr()).Named("transport")),
		transport.WithOnAuthRequired(func(_ *http.Request, err error) { authErr = err }),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var body io.Reader
	if callData != "" {
		body = strings.NewReader(callData)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(callMethod), args[0], body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, h := range callHeaders {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("%s: header %q is not Name: value", op, h)
		}
		req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if authErr != nil {
		return errors.Join(errAuthRequired, authErr)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", op, resp.Status)
	}
	return nil
}
