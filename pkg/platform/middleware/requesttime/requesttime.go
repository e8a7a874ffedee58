// Package requesttime pins one "now" per HTTP request. Every expiry
// normalization and timestamp within a request uses this single instant,
// which keeps reconciliation outcomes deterministic and audit timestamps
// consistent.
package requesttime

import (
	"net/http"
	"time"

	"civreg/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and
// stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
