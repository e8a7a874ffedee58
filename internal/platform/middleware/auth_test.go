package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/requestcontext"
)

func TestAuthenticator_IssueAndValidate(t *testing.T) {
	auth := NewAuthenticator("test-key")
	clientID := id.ClientID(uuid.New())

	token, err := auth.IssueToken(clientID, time.Now())
	require.NoError(t, err)

	got, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, clientID, got)
}

func TestAuthenticator_RejectsExpiredToken(t *testing.T) {
	auth := NewAuthenticator("test-key")

	token, err := auth.IssueToken(id.ClientID(uuid.New()), time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestAuthenticator_RejectsWrongKey(t *testing.T) {
	token, err := NewAuthenticator("key-a").IssueToken(id.ClientID(uuid.New()), time.Now())
	require.NoError(t, err)

	_, err = NewAuthenticator("key-b").ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestRequireClientAuth(t *testing.T) {
	auth := NewAuthenticator("test-key")
	clientID := id.ClientID(uuid.New())

	var seen id.ClientID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.ClientID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	protected := RequireClientAuth(auth, zap.NewNop())(next)

	t.Run("valid token passes client through", func(t *testing.T) {
		token, err := auth.IssueToken(clientID, time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, clientID, seen)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
