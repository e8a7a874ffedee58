// Package testutil provides common test utilities for handler and
// integration tests.
package testutil

import (
	"net/http"
	"time"

	id "civreg/pkg/domain"
	"civreg/pkg/requestcontext"
)

// WithClientID adds a client application ID to the request context. This
// simulates what the auth middleware does for authenticated requests.
// An invalid UUID is silently ignored.
func WithClientID(req *http.Request, clientID string) *http.Request {
	parsed, err := id.ParseClientID(clientID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithClientID(req.Context(), parsed))
}

// WithRequestTime pins the request-scoped clock, making reconciliation
// outcomes deterministic in tests.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
