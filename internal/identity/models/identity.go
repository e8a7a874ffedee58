// Package models holds the identity aggregate: a person record carrying a
// set of typed, independently certifiable attributes.
package models

import (
	"time"

	"civreg/internal/reconcile"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// Identity is the aggregate root for one person record.
//
// Invariants:
//   - ID is non-nil
//   - every stored attribute has a non-empty key and a non-nil value
//     (removal deletes the entry, it never stores a null)
//   - CreatedAt is immutable after construction
//
// Attribute states are mutated in place by successive reconciliations, never
// replaced wholesale; Version increments on every persisted change and backs
// the store's optimistic-concurrency guard.
type Identity struct {
	ID         id.IdentityID
	Attributes map[id.AttributeKey]reconcile.AttributeState
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewIdentity validates and constructs an empty identity.
func NewIdentity(identityID id.IdentityID, now time.Time) (*Identity, error) {
	if identityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
	}
	return &Identity{
		ID:         identityID,
		Attributes: make(map[id.AttributeKey]reconcile.AttributeState),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Snapshot returns a copy of the attribute map safe to hand to the
// reconciliation core.
func (i *Identity) Snapshot() map[id.AttributeKey]reconcile.AttributeState {
	snapshot := make(map[id.AttributeKey]reconcile.AttributeState, len(i.Attributes))
	for key, state := range i.Attributes {
		snapshot[key] = state
	}
	return snapshot
}

// ApplySnapshot replaces the attribute set with a reconciled snapshot and
// bumps the version. Call only when the reconciliation actually changed
// something; no-op requests must not advance the version.
func (i *Identity) ApplySnapshot(snapshot map[id.AttributeKey]reconcile.AttributeState, now time.Time) {
	i.Attributes = snapshot
	i.Version++
	i.UpdatedAt = now
}
