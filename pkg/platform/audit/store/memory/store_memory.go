// Package memory provides the in-memory audit store used by unit tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	id "civreg/pkg/domain"
	audit "civreg/pkg/platform/audit"
)

// InMemoryStore keeps audit events in an append-only slice per identity.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.IdentityID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.IdentityID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.IdentityID] = append(s.events[event.IdentityID], event)
	return nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID id.IdentityID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[identityID]
	out := make([]audit.Event, len(events))
	copy(out, events)
	return out, nil
}
