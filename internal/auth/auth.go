// Package auth enforces an optional static bearer token on mutating and streaming
// endpoints.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/debriswatch/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// publicPaths are readable without a token. Probes and metrics must stay reachable by
// the platform; the read-only conjunction views back the public dashboard.
var publicPaths = map[string]bool{
	"/healthz":                     true,
	"/readyz":                      true,
	"/metrics":                     true,
	"/api/v1/catalog":              true,
	"/api/v1/conjunctions":         true,
	"/api/v1/conjunctions/history": true,
}

const objectsPrefix = "/api/v1/objects/"

// IsPublic reports whether a request may skip authentication.
func IsPublic(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return publicPaths[r.URL.Path] || strings.HasPrefix(r.URL.Path, objectsPrefix)
}

// Middleware enforces "Authorization: Bearer <token>" on non-public requests when auth
// is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || IsPublic(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="debriswatch"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
