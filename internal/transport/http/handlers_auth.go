package httptransport

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"civreg/internal/permission"
	"civreg/internal/permission/secrets"
	"civreg/internal/platform/middleware"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
	"civreg/pkg/requestcontext"
)

// TokenRequest is the HTTP request body for POST /auth/token.
type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	parsedClientID id.ClientID
}

// Validate validates and parses the request.
func (r *TokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	clientID, err := id.ParseClientID(strings.TrimSpace(r.ClientID))
	if err != nil {
		return err
	}
	r.parsedClientID = clientID
	if r.ClientSecret == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "client_secret is required")
	}
	return nil
}

// TokenResponse is the HTTP response for POST /auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type authHandler struct {
	contracts permission.ContractStore
	auth      *middleware.Authenticator
	logger    *zap.Logger
}

// HandleToken handles POST /auth/token: it exchanges client credentials for
// a short-lived bearer token. Unknown clients and wrong secrets produce the
// same response so the endpoint does not confirm which client IDs exist.
func (h *authHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	unauthorized := dErrors.New(dErrors.CodeUnauthorized, "invalid client credentials")

	contract, err := h.contracts.FindByClientID(ctx, req.parsedClientID)
	if err != nil || contract == nil || !contract.IsActive() {
		h.logger.Warn("token request for unknown or inactive client",
			zap.String("request_id", requestID),
		)
		httputil.WriteError(w, unauthorized)
		return
	}

	if err := secrets.Verify(req.ClientSecret, contract.SecretHash); err != nil {
		h.logger.Warn("token request with wrong secret",
			zap.String("request_id", requestID),
			zap.String("client_id", contract.ClientID.String()),
		)
		httputil.WriteError(w, unauthorized)
		return
	}

	token, err := h.auth.IssueToken(contract.ClientID, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	})
}
