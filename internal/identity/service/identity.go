package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	identitymetrics "civreg/internal/identity/metrics"
	"civreg/internal/identity/models"
	"civreg/internal/reconcile"
	reconcilemetrics "civreg/internal/reconcile/metrics"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	audit "civreg/pkg/platform/audit"
	"civreg/pkg/requestcontext"
)

var tracer = otel.Tracer("civreg/internal/identity/service")

// WithReconcileMetrics wires the reconciliation-core instruments. The service
// records them because it is the component that calls Apply.
func WithReconcileMetrics(m *reconcilemetrics.Metrics) Option {
	return func(s *Service) { s.reconcileMetrics = m }
}

// CreateIdentity provisions an empty identity record and returns it.
func (s *Service) CreateIdentity(ctx context.Context) (*models.Identity, error) {
	ctx, span := tracer.Start(ctx, "identity.CreateIdentity")
	defer span.End()

	now := requestcontext.Now(ctx)
	identity, err := models.NewIdentity(id.IdentityID(uuid.New()), now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, identity); err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Timestamp:  now,
		IdentityID: identity.ID,
		ClientID:   requestcontext.ClientID(ctx),
		RequestID:  requestcontext.RequestID(ctx),
		Action:     string(audit.ActionIdentityCreated),
	})
	s.metrics.IdentityCreated()
	s.logger.Info("identity created", zap.String("identity_id", identity.ID.String()))
	return identity, nil
}

// GetIdentity returns the identity with its attribute set filtered down to
// the keys the requesting client holds a read grant for. Attributes without
// a grant are withheld silently rather than erroring, so a partial reader
// still gets a useful record.
func (s *Service) GetIdentity(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	ctx, span := tracer.Start(ctx, "identity.GetIdentity",
		trace.WithAttributes(attribute.String("identity.id", identityID.String())))
	defer span.End()

	clientID := requestcontext.ClientID(ctx)
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "client identity missing from request context")
	}

	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	visible := make(map[id.AttributeKey]reconcile.AttributeState, len(identity.Attributes))
	withheld := 0
	for key, state := range identity.Attributes {
		readable, err := s.permissions.Readable(ctx, clientID, key)
		if err != nil {
			return nil, err
		}
		if !readable {
			withheld++
			continue
		}
		visible[key] = state
	}
	s.metrics.AttributesFiltered(withheld)

	view := *identity
	view.Attributes = visible
	return &view, nil
}

// UpdateAttributes applies a change request to one identity.
//
// The full sequence runs under the store's per-identity guard: snapshot the
// stored attributes, reconcile the request against them, and persist the new
// snapshot only when at least one attribute actually changed. Every submitted
// attribute yields an outcome and an audit event, including rejections,
// no-ops and structural faults.
func (s *Service) UpdateAttributes(ctx context.Context, identityID id.IdentityID, req UpdateRequest) (*UpdateResult, error) {
	ctx, span := tracer.Start(ctx, "identity.UpdateAttributes",
		trace.WithAttributes(
			attribute.String("identity.id", identityID.String()),
			attribute.Int("attributes.count", len(req.Changes)),
		))
	defer span.End()

	start := time.Now()

	clientID := requestcontext.ClientID(ctx)
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "client identity missing from request context")
	}
	if len(req.Changes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "change request has no attributes")
	}

	changeReq, err := s.resolveChangeRequest(ctx, clientID, req)
	if err != nil {
		s.metrics.UpdateRequest(identitymetrics.ResultError, time.Since(start))
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var result reconcile.Result
	updated, err := s.store.Execute(ctx, identityID, func(identity *models.Identity) error {
		applyStart := time.Now()
		result = s.orchestrator.Apply(identity.Snapshot(), changeReq, now)
		s.reconcileMetrics.ObserveApplyLatency(time.Since(applyStart))

		if result.Changed() {
			identity.ApplySnapshot(result.Snapshot, now)
		}
		return nil
	})
	if err != nil {
		s.metrics.UpdateRequest(identitymetrics.ResultError, time.Since(start))
		return nil, err
	}

	s.recordOutcomes(ctx, identityID, clientID, now, result)

	label := identitymetrics.ResultNoOp
	if result.Changed() {
		label = identitymetrics.ResultChanged
	} else {
		s.reconcileMetrics.IncrementNoOp()
	}
	s.metrics.UpdateRequest(label, time.Since(start))

	return &UpdateResult{
		Identity: updated,
		Outcomes: result.Outcomes,
		Changed:  result.Changed(),
	}, nil
}

// resolveChangeRequest fills in the per-attribute write permission for the
// requesting client. Lacking a write grant does not reject here; the
// reconciliation core decides what a non-writable change may still do.
func (s *Service) resolveChangeRequest(ctx context.Context, clientID id.ClientID, req UpdateRequest) (reconcile.ChangeRequest, error) {
	attributes := make([]reconcile.ChangeAttribute, 0, len(req.Changes))
	for _, change := range req.Changes {
		writable, err := s.permissions.Writable(ctx, clientID, change.Key)
		if err != nil {
			return reconcile.ChangeRequest{}, err
		}
		attributes = append(attributes, reconcile.ChangeAttribute{
			Key:           change.Key,
			Value:         change.Value,
			CertifierCode: change.CertifierCode,
			Writable:      writable,
		})
	}
	return reconcile.ChangeRequest{Attributes: attributes}, nil
}

// recordOutcomes turns every reconciliation outcome into one audit event and
// one metric increment.
func (s *Service) recordOutcomes(ctx context.Context, identityID id.IdentityID, clientID id.ClientID, now time.Time, result reconcile.Result) {
	requestID := requestcontext.RequestID(ctx)

	for _, out := range result.Outcomes {
		event := audit.Event{
			Timestamp:     now,
			IdentityID:    identityID,
			ClientID:      clientID,
			RequestID:     requestID,
			AttributeKey:  out.Key,
			PreviousValue: out.PreviousValue,
			NewValue:      out.Value,
			Status:        string(out.Status),
		}
		if out.PreviousCertification != nil {
			event.PreviousCertifier = out.PreviousCertification.CertifierCode
		}
		if out.Certification != nil {
			event.NewCertifier = out.Certification.CertifierCode
		}

		switch {
		case out.Err != nil:
			event.Action = string(audit.ActionAttributeFault)
			event.Reason = out.Err.Error()
			s.reconcileMetrics.IncrementFault(string(dErrors.CodeOf(out.Err)))
		case out.Deleted:
			event.Action = string(audit.ActionAttributeRemoved)
			event.NewValue = ""
			s.reconcileMetrics.IncrementOutcome(string(out.Status))
		case out.Changed:
			event.Action = string(audit.ActionAttributeApplied)
			s.reconcileMetrics.IncrementOutcome(string(out.Status))
		case out.Status == reconcile.StatusNoChangeRequested:
			event.Action = string(audit.ActionAttributeNoOp)
			s.reconcileMetrics.IncrementOutcome(string(out.Status))
		default:
			event.Action = string(audit.ActionAttributeRejected)
			s.reconcileMetrics.IncrementOutcome(string(out.Status))
		}

		s.emit(ctx, event)
	}
}

// emit publishes an audit event, logging instead of failing the request when
// the publisher is down. The caller's state change has already committed.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.Error("audit emit failed",
			zap.String("identity_id", event.IdentityID.String()),
			zap.String("action", event.Action),
			zap.Error(err),
		)
	}
}
