// Package health serves liveness and readiness probes.
package health

import (
	"net/http"
	"strings"
)

// Check returns nil when its dependency is ready, or an error naming what is missing.
type Check func() error

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz returns a handler answering 200 "ready\n" once every check passes, and 503
// with one failure per line otherwise.
func Readyz(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var failures []string
		for _, check := range checks {
			if err := check(); err != nil {
				failures = append(failures, err.Error())
			}
		}

		w.Header().Set("Content-Type", "text/plain")
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: " + strings.Join(failures, "\nnot ready: ") + "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}
