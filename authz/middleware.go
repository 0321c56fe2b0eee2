// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authz

import "net/http"

// PrincipalFunc returns the principal making the request.
type PrincipalFunc func(*http.Request) Principal

// RequireAuthenticated responds 401 unless the request's principal is
// authenticated.
func (d *Decider) RequireAuthenticated(src PrincipalFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !d.IsAuthenticated(src(req)) {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// RequireRole responds 401 when the request's principal is unauthenticated
// and 403 when it lacks role.
func (d *Decider) RequireRole(src PrincipalFunc, role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p := src(req)
		switch {
		case !d.IsAuthenticated(p):
			unauthorized(w)
		case !d.HasRole(req.Context(), p, role):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			next.ServeHTTP(w, req)
		}
	})
}

// RequireRole is Decider.RequireRole using the default Decider.
func RequireRole(src PrincipalFunc, role string, next http.Handler) http.Handler {
	return NewDecider().RequireRole(src, role, next)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
