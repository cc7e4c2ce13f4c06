// Package requesttime pins one "now" per HTTP request so audit events and
// log lines emitted while serving it agree on the time.
package requesttime

import (
	"net/http"
	"time"

	"fleetdesk/pkg/requestcontext"
)

// Middleware stores the request start time; read it with requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
