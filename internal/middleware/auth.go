package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

// RequireAdminToken guards operator routes with a static bearer token.
// An empty token disables the routes entirely: every request gets 401.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondUnauthorized(w, r, "Admin API is disabled")
				return
			}

			presented, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				respondUnauthorized(w, r, "Authentication required")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				GetLogger(r.Context()).Warn("admin token rejected", "client_ip", GetClientIP(r))
				respondUnauthorized(w, r, "Invalid credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
