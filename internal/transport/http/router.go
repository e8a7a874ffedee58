// Package httptransport assembles the HTTP surface: middleware chain, public
// endpoints and the authenticated identity API.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	identityhandler "civreg/internal/identity/handler"
	"civreg/internal/permission"
	"civreg/internal/platform/middleware"
	"civreg/pkg/platform/middleware/requestid"
	"civreg/pkg/platform/middleware/requestlog"
	"civreg/pkg/platform/middleware/requesttime"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Identity      identityhandler.Service
	Contracts     permission.ContractStore
	Authenticator *middleware.Authenticator
	Logger        *zap.Logger
}

// NewRouter builds the full handler chain. /healthz, /metrics and
// /auth/token are public; everything under /v1 requires a client token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(requestlog.Middleware(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	auth := &authHandler{
		contracts: deps.Contracts,
		auth:      deps.Authenticator,
		logger:    deps.Logger,
	}
	r.Post("/auth/token", auth.HandleToken)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireClientAuth(deps.Authenticator, deps.Logger))
		identityhandler.New(deps.Identity, deps.Logger).Register(r)
	})

	return r
}
