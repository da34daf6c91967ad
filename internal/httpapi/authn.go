package httpapi

import (
	"net/http"

	"tijara.org/internal/auth"
)

const authHeader = "Authorization"

// Endpoints reachable without credentials. Refresh stays public because it
// authenticates the refresh token inside its handler.
var publicPaths = []string{
	"/v1/auth/signup",
	"/v1/auth/confirm-email",
	"/v1/auth/resend-confirm-email",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth runs the request gate on everything except the public surface:
// header extraction, scheme-to-tier mapping, verification, revocation
// lookup, subject lookup and the freshness check all happen inside
// Service.Authenticate. On success the identity is attached to the request
// context.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		creds, err := a.auth.Authenticate(r.Context(), r.Header.Get(authHeader), auth.KindAccess)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithCredentials(r.Context(), creds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles enforces a static per-endpoint allow-list over the
// authenticated identity. Runs after withAuth.
func (a *API) requireRoles(allowed []auth.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := auth.CredentialsFromContext(r.Context())
		if !ok {
			writeAuthError(w, r, auth.ErrUnauthorized)
			return
		}
		if !auth.Allowed(creds.User.Role, allowed) {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
