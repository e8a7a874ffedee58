package audit

import (
	"context"
	"time"

	id "civreg/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// every accepted or rejected attribute change on a person record.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// refused deletions, data-integrity faults.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging: no-op requests
	// and routine access patterns. These can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event captures one attribute transition decided by the reconciliation
// core. It carries both sides of the change so a reviewer can reconstruct
// the full history of an identity from the audit trail alone. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time
	IdentityID id.IdentityID
	ClientID   id.ClientID
	RequestID  string
	Action     string

	AttributeKey      id.AttributeKey
	PreviousValue     string
	NewValue          string
	PreviousCertifier id.CertifierCode
	NewCertifier      id.CertifierCode
	Status            string
	Reason            string
}

// Action is the closed vocabulary of audited actions.
type Action string

const (
	ActionIdentityCreated   Action = "identity_created"
	ActionAttributeApplied  Action = "attribute_applied"
	ActionAttributeRemoved  Action = "attribute_removed"
	ActionAttributeRejected Action = "attribute_rejected"
	ActionAttributeNoOp     Action = "attribute_noop"
	ActionAttributeFault    Action = "attribute_fault"
)

// actionCategories maps each audited action to its category.
var actionCategories = map[Action]EventCategory{
	ActionIdentityCreated:   CategoryCompliance,
	ActionAttributeApplied:  CategoryCompliance,
	ActionAttributeRemoved:  CategoryCompliance,
	ActionAttributeRejected: CategoryCompliance,
	ActionAttributeFault:    CategorySecurity,
	ActionAttributeNoOp:     CategoryOperations,
}

// Category returns the EventCategory for this action. Unknown actions
// default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Store is the append-only persistence port for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]Event, error)
}
