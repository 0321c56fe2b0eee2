// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/oauthlab/authsession/session"
)

// SuccessResponseFunc is used by callbacks to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful oidc authentication response.  The session.Session is
// the result of completing the flow.  The function should use the
// http.ResponseWriter to send back whatever content (headers, html, JSON,
// etc) it wishes to the client that originated the oidc flow.
type SuccessResponseFunc func(state string, s *session.Session, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by callbacks to create a http response when the
// callback fails.
//
// The function receives the state returned as part of the oidc authentication
// response.  It also gets parameters for the oidc authentication error response
// and/or the callback error raised while processing the request.  The function
// should use the http.ResponseWriter to send back whatever content (headers,
// html, JSON, etc) it wishes to the client that originated the oidc flow.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// Error implements the error interface.
func (r *AuthenErrorResponse) Error() string {
	if r.Description == "" {
		return r.Code
	}
	return r.Code + ": " + r.Description
}

// RedirectSuccess returns a SuccessResponseFunc which redirects to target,
// typically the page the user started from.
func RedirectSuccess(target string) SuccessResponseFunc {
	return func(_ string, _ *session.Session, w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, target, http.StatusSeeOther)
	}
}

// NoContentSuccess answers 204.  It suits the silent redirect target, which
// is loaded by a hidden user agent.
func NoContentSuccess(_ string, _ *session.Session, w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in failed</title></head>
<body>
<h1 id="title">{{.Title}}</h1>
<p id="message">{{.Message}}</p>
{{if .LoginURL}}<a id="login" href="{{.LoginURL}}">Sign in again</a>{{end}}
</body>
</html>
`))

// ErrorPage returns an ErrorResponseFunc which renders an HTML page linking
// back to loginURL.  Provider errors answer 401, a state that doesn't match a
// pending request answers 400 and anything else 500.
func ErrorPage(loginURL string) ErrorResponseFunc {
	return func(_ string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
		data := struct {
			Title    string
			Message  string
			LoginURL string
		}{
			Title:    "Sign in failed",
			Message:  "The sign in could not be completed.",
			LoginURL: loginURL,
		}
		status := http.StatusInternalServerError
		switch {
		case respErr != nil:
			status = http.StatusUnauthorized
			data.Message = respErr.Error()
		case errors.Is(e, session.ErrStateMismatch):
			status = http.StatusBadRequest
			data.Message = "The sign in request is unknown or was already used."
		case errors.Is(e, session.ErrNotReady):
			status = http.StatusServiceUnavailable
			data.Message = "The sign in service is not ready yet."
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = errorPage.Execute(w, data)
	}
}
