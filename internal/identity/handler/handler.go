// Package handler wires the identity endpoints to the identity service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"civreg/internal/identity/models"
	"civreg/internal/identity/service"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
	"civreg/pkg/requestcontext"
)

// Service defines the identity operations the handler depends on.
type Service interface {
	CreateIdentity(ctx context.Context) (*models.Identity, error)
	GetIdentity(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	UpdateAttributes(ctx context.Context, identityID id.IdentityID, req service.UpdateRequest) (*service.UpdateResult, error)
}

// Handler serves the identity HTTP API.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// New constructs an identity handler with its dependencies.
func New(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts identity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identities", h.HandleCreate)
	r.Get("/identities/{identityID}", h.HandleGet)
	r.Put("/identities/{identityID}/attributes", h.HandleUpdateAttributes)
	r.Get("/identities/{identityID}/attributes/{key}", h.HandleGetAttribute)
}

// HandleCreate handles POST /identities requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.service.CreateIdentity(ctx)
	if err != nil {
		h.logger.Error("identity creation failed",
			zap.String("request_id", requestcontext.RequestID(ctx)),
			zap.Error(err),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromIdentity(identity))
}

// HandleGet handles GET /identities/{identityID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, err := id.ParseIdentityID(chi.URLParam(r, "identityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	identity, err := h.service.GetIdentity(ctx, identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(identity))
}

// HandleUpdateAttributes handles PUT /identities/{identityID}/attributes.
func (h *Handler) HandleUpdateAttributes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	identityID, err := id.ParseIdentityID(chi.URLParam(r, "identityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateAttributesRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.UpdateAttributes(ctx, identityID, service.UpdateRequest{
		Changes: req.ParsedChanges(),
	})
	if err != nil {
		h.logger.Error("attribute update failed",
			zap.String("request_id", requestID),
			zap.String("identity_id", identityID.String()),
			zap.Error(err),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.Info("attributes reconciled",
		zap.String("request_id", requestID),
		zap.String("identity_id", identityID.String()),
		zap.Int("attributes", len(result.Outcomes)),
		zap.Bool("changed", result.Changed),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	httputil.WriteJSON(w, http.StatusOK, FromUpdateResult(result))
}

// HandleGetAttribute handles GET /identities/{identityID}/attributes/{key}.
func (h *Handler) HandleGetAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, err := id.ParseIdentityID(chi.URLParam(r, "identityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	key, err := id.ParseAttributeKey(chi.URLParam(r, "key"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	identity, err := h.service.GetIdentity(ctx, identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	state, ok := identity.Attributes[key]
	if !ok {
		// Absent and unreadable are indistinguishable on purpose: the response
		// must not reveal that a withheld attribute exists.
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "attribute %q not found", key))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAttributeState(state))
}
