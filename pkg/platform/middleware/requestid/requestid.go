// Package requestid assigns a correlation ID to every request.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"civreg/pkg/requestcontext"
)

// Header carries the correlation ID on requests and responses.
const Header = "X-Request-ID"

// Middleware accepts a caller-provided request ID or generates one, stores
// it in the context, and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
