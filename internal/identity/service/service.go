// Package service orchestrates identity updates: load the current snapshot,
// resolve permissions, run the reconciliation core, persist when something
// changed, and emit one audit event per attribute outcome.
package service

import (
	"context"

	"go.uber.org/zap"

	identitymetrics "civreg/internal/identity/metrics"
	"civreg/internal/identity/models"
	"civreg/internal/reconcile"
	reconcilemetrics "civreg/internal/reconcile/metrics"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	audit "civreg/pkg/platform/audit"
)

//go:generate mockgen -source=service.go -destination=mocks/service_mocks.go -package=mocks

// IdentityStore abstracts identity persistence. Execute runs fn with the
// identity held under the store's per-identity guard (mutex or row lock), so
// the read-reconcile-write sequence is atomic per identity.
type IdentityStore interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	Execute(ctx context.Context, identityID id.IdentityID, fn func(*models.Identity) error) (*models.Identity, error)
}

// PermissionResolver answers per-attribute permission questions for the
// requesting client application.
type PermissionResolver interface {
	Writable(ctx context.Context, clientID id.ClientID, key id.AttributeKey) (bool, error)
	Readable(ctx context.Context, clientID id.ClientID, key id.AttributeKey) (bool, error)
}

// AuditPublisher consumes the ordered outcome records.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AttributeChange is one submitted attribute tuple, before permission and
// certifier resolution. A nil Value requests removal.
type AttributeChange struct {
	Key           id.AttributeKey
	Value         *string
	CertifierCode *id.CertifierCode
}

// UpdateRequest is a client-submitted change to one identity.
type UpdateRequest struct {
	Changes []AttributeChange
}

// UpdateResult pairs the resulting identity with the ordered per-attribute
// outcomes, in submission order, for client-facing reporting.
type UpdateResult struct {
	Identity *models.Identity
	Outcomes []reconcile.Outcome
	Changed  bool
}

// Service is the identity update entry point.
type Service struct {
	store        IdentityStore
	orchestrator *reconcile.Orchestrator
	permissions  PermissionResolver

	auditPublisher   AuditPublisher
	metrics          *identitymetrics.Metrics
	reconcileMetrics *reconcilemetrics.Metrics
	logger           *zap.Logger
}

// Option configures optional service collaborators.
type Option func(*Service)

func WithAuditPublisher(pub AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = pub }
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store IdentityStore, orchestrator *reconcile.Orchestrator, permissions PermissionResolver, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity store is required")
	}
	if orchestrator == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "orchestrator is required")
	}
	if permissions == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "permission resolver is required")
	}
	s := &Service{
		store:        store,
		orchestrator: orchestrator,
		permissions:  permissions,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}
