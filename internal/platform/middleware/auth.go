// Package middleware holds the client authentication middleware. Client
// applications present a bearer JWT whose subject is their contract's client
// ID; the middleware resolves it into the request context for the permission
// resolver downstream.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
	"civreg/pkg/requestcontext"
)

const tokenTTL = time.Hour

// Authenticator issues and validates client bearer tokens.
type Authenticator struct {
	signingKey []byte
}

func NewAuthenticator(signingKey string) *Authenticator {
	return &Authenticator{signingKey: []byte(signingKey)}
}

// IssueToken mints a short-lived bearer token for an authenticated client.
func (a *Authenticator) IssueToken(clientID id.ClientID, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   clientID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		Issuer:    "civreg",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign client token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a bearer token and returns the client ID it carries.
func (a *Authenticator) ValidateToken(tokenString string) (id.ClientID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	}, jwt.WithIssuer("civreg"), jwt.WithExpirationRequired())
	if err != nil {
		return id.ClientID{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return id.ClientID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	clientID, err := id.ParseClientID(claims.Subject)
	if err != nil {
		return id.ClientID{}, dErrors.New(dErrors.CodeUnauthorized, "token subject is not a client id")
	}
	return clientID, nil
}

// RequireClientAuth rejects requests without a valid bearer token and puts
// the authenticated client ID into the request context.
func RequireClientAuth(auth *Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.Warn("unauthorized access, missing bearer token",
					zap.String("request_id", requestcontext.RequestID(ctx)),
					zap.String("path", r.URL.Path),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			clientID, err := auth.ValidateToken(token)
			if err != nil {
				logger.Warn("unauthorized access, invalid token",
					zap.String("request_id", requestcontext.RequestID(ctx)),
					zap.Error(err),
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithClientID(ctx, clientID)))
		})
	}
}
