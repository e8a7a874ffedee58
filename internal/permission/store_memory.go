package permission

import (
	"context"
	"sync"

	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

// InMemoryContractStore keeps service contracts in a mutex-guarded map. It
// favors clarity over performance; the production path loads contracts from
// the provisioning system at startup.
type InMemoryContractStore struct {
	mu        sync.RWMutex
	contracts map[id.ClientID]*ServiceContract
}

func NewInMemoryContractStore() *InMemoryContractStore {
	return &InMemoryContractStore{contracts: make(map[id.ClientID]*ServiceContract)}
}

func (s *InMemoryContractStore) Save(_ context.Context, contract *ServiceContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *contract
	s.contracts[contract.ClientID] = &copied
	return nil
}

func (s *InMemoryContractStore) FindByClientID(_ context.Context, clientID id.ClientID) (*ServiceContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if contract, ok := s.contracts[clientID]; ok {
		copied := *contract
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}
