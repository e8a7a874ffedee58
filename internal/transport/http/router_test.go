package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"civreg/internal/certifier"
	"civreg/internal/identity/service"
	"civreg/internal/identity/store"
	"civreg/internal/permission"
	"civreg/internal/permission/secrets"
	"civreg/internal/platform/middleware"
	"civreg/internal/reconcile"
	id "civreg/pkg/domain"
)

type fixture struct {
	router       http.Handler
	clientID     id.ClientID
	clientSecret string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry, err := certifier.NewRegistry([]certifier.Definition{
		{Code: "civil_status", TrustLevel: 3},
	})
	require.NoError(t, err)
	orchestrator, err := reconcile.NewOrchestrator(registry)
	require.NoError(t, err)

	secret, err := secrets.Generate()
	require.NoError(t, err)
	hash, err := secrets.Hash(secret)
	require.NoError(t, err)

	clientID := id.ClientID(uuid.New())
	contracts := permission.NewInMemoryContractStore()
	contract, err := permission.NewServiceContract(clientID, "city-portal", hash, map[id.AttributeKey]permission.Grant{
		"mail": {Read: true, Write: true},
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, contracts.Save(context.Background(), contract))

	resolver, err := permission.NewResolver(contracts)
	require.NoError(t, err)
	svc, err := service.New(store.NewInMemoryStore(), orchestrator, resolver)
	require.NoError(t, err)

	router := NewRouter(Deps{
		Identity:      svc,
		Contracts:     contracts,
		Authenticator: middleware.NewAuthenticator("test-signing-key"),
		Logger:        zap.NewNop(),
	})
	return &fixture{router: router, clientID: clientID, clientSecret: secret}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	body, err := json.Marshal(TokenRequest{
		ClientID:     f.clientID.String(),
		ClientSecret: f.clientSecret,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenExchangeAndAuthenticatedRequest(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/identities", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestToken_WrongSecret(t *testing.T) {
	f := newFixture(t)
	body, err := json.Marshal(TokenRequest{
		ClientID:     f.clientID.String(),
		ClientSecret: "wrong",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestToken_UnknownClient(t *testing.T) {
	f := newFixture(t)
	body, err := json.Marshal(TokenRequest{
		ClientID:     uuid.NewString(),
		ClientSecret: "whatever",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/identities", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoute_RejectsGarbageToken(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/identities", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
