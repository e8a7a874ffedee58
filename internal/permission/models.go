// Package permission resolves what a client application may do to each
// identity attribute. The reconciliation core receives the answers as plain
// booleans; deciding them lives here, against provisioned service contracts.
package permission

import (
	"time"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// ContractStatus is the lifecycle state of a service contract.
type ContractStatus string

const (
	ContractStatusActive   ContractStatus = "active"
	ContractStatusInactive ContractStatus = "inactive"
)

// Grant is the per-attribute permission pair of a contract.
type Grant struct {
	Read  bool
	Write bool
}

// ServiceContract binds a client application to its attribute grants.
//
// Invariants:
//   - ClientID is non-nil
//   - Name is non-empty
//   - SecretHash holds a bcrypt hash, never a plaintext secret
//
// An inactive contract answers false to every permission question
// immediately; no per-grant cascade is needed.
type ServiceContract struct {
	ClientID   id.ClientID
	Name       string
	SecretHash string
	Status     ContractStatus
	Grants     map[id.AttributeKey]Grant
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewServiceContract validates and constructs an active contract.
func NewServiceContract(clientID id.ClientID, name, secretHash string, grants map[id.AttributeKey]Grant, now time.Time) (*ServiceContract, error) {
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "client id is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "contract name is required")
	}
	if secretHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "contract secret hash is required")
	}
	if grants == nil {
		grants = map[id.AttributeKey]Grant{}
	}
	return &ServiceContract{
		ClientID:   clientID,
		Name:       name,
		SecretHash: secretHash,
		Status:     ContractStatusActive,
		Grants:     grants,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsActive reports whether the contract may be used at all.
func (c *ServiceContract) IsActive() bool {
	return c.Status == ContractStatusActive
}

// CanWrite reports whether the contract grants write access to the key.
func (c *ServiceContract) CanWrite(key id.AttributeKey) bool {
	if !c.IsActive() {
		return false
	}
	return c.Grants[key].Write
}

// CanRead reports whether the contract grants read access to the key.
// Write implies read: a client allowed to change an attribute may see what
// it changed.
func (c *ServiceContract) CanRead(key id.AttributeKey) bool {
	if !c.IsActive() {
		return false
	}
	grant := c.Grants[key]
	return grant.Read || grant.Write
}
