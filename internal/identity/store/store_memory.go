// Package store provides identity persistence: an in-memory implementation
// for tests and development, a PostgreSQL implementation for production, and
// a Redis read-through cache that can wrap either.
package store

import (
	"context"
	"sync"

	"civreg/internal/identity/models"
	"civreg/internal/reconcile"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

// InMemoryStore keeps identities in a map. Execute serializes all mutations
// behind one lock, which is the in-memory stand-in for the row lock the
// PostgreSQL store takes.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[id.IdentityID]*models.Identity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		identities: make(map[id.IdentityID]*models.Identity),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.ID]; exists {
		return sentinel.ErrConflict
	}
	s.identities[identity.ID] = cloneIdentity(identity)
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneIdentity(identity), nil
}

// Execute runs fn against a working copy of the identity under the store
// lock and persists the copy when fn succeeds. An error from fn discards
// every change.
func (s *InMemoryStore) Execute(ctx context.Context, identityID id.IdentityID, fn func(*models.Identity) error) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := cloneIdentity(stored)
	if err := fn(working); err != nil {
		return nil, err
	}

	s.identities[identityID] = working
	return cloneIdentity(working), nil
}

// cloneIdentity copies an identity deeply enough that callers cannot mutate
// stored state through returned pointers. Certification pointers are shared;
// reconciliation never mutates a certification in place, it replaces it.
func cloneIdentity(identity *models.Identity) *models.Identity {
	clone := *identity
	clone.Attributes = make(map[id.AttributeKey]reconcile.AttributeState, len(identity.Attributes))
	for key, state := range identity.Attributes {
		clone.Attributes[key] = state
	}
	return &clone
}
