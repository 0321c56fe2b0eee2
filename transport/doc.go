// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package transport injects the session's access token into outbound requests
and applies a policy to 401 responses.

Example:

	m, _ := session.NewManager(c, s)
	_ = m.Start(ctx)
	client, _ := transport.NewClient(m,
		transport.WithOnAuthRequired(func(r *http.Request, err error) {
			log.Println(err)
		}),
	)
	resp, err := client.Get("https://api.example.com/things")
*/
package transport
