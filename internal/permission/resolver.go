package permission

import (
	"context"
	"errors"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
)

// ContractStore abstracts contract persistence so the resolver stays
// testable with an in-memory implementation.
type ContractStore interface {
	FindByClientID(ctx context.Context, clientID id.ClientID) (*ServiceContract, error)
}

// Resolver answers per-attribute permission questions for a client
// application. A missing or inactive contract answers false, never an error:
// "not allowed" is a normal answer, not a fault.
type Resolver struct {
	contracts ContractStore
}

func NewResolver(contracts ContractStore) (*Resolver, error) {
	if contracts == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "contract store is required")
	}
	return &Resolver{contracts: contracts}, nil
}

// Writable reports whether the client may mutate the given attribute.
func (r *Resolver) Writable(ctx context.Context, clientID id.ClientID, key id.AttributeKey) (bool, error) {
	contract, err := r.find(ctx, clientID)
	if err != nil || contract == nil {
		return false, err
	}
	return contract.CanWrite(key), nil
}

// Readable reports whether the client may see the given attribute.
func (r *Resolver) Readable(ctx context.Context, clientID id.ClientID, key id.AttributeKey) (bool, error) {
	contract, err := r.find(ctx, clientID)
	if err != nil || contract == nil {
		return false, err
	}
	return contract.CanRead(key), nil
}

func (r *Resolver) find(ctx context.Context, clientID id.ClientID) (*ServiceContract, error) {
	if clientID.IsNil() {
		return nil, nil
	}
	contract, err := r.contracts.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve service contract")
	}
	return contract, nil
}
