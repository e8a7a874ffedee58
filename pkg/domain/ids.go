// Package domain holds the typed identifiers shared across registry modules.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects
// cross-type assignment (an IdentityID can never be passed where a ClientID
// is expected). Parse* constructors enforce the invariant that IDs are
// valid, non-empty, non-nil UUIDs at trust boundaries.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "civreg/pkg/domain-errors"
)

// IdentityID identifies a person record in the registry.
type IdentityID uuid.UUID

// ClientID identifies a client application holding a service contract.
type ClientID uuid.UUID

// AttributeKey names one certifiable attribute on an identity
// (e.g. "family_name", "mail", "birth_date").
type AttributeKey string

// CertifierCode is the unique key of a certifying process in the
// certifier reference table.
type CertifierCode string

func (id IdentityID) String() string { return uuid.UUID(id).String() }
func (id IdentityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ClientID) String() string { return uuid.UUID(id).String() }
func (id ClientID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (k AttributeKey) String() string { return string(k) }

func (c CertifierCode) String() string { return string(c) }

// ParseIdentityID validates and converts a string into an IdentityID.
func ParseIdentityID(s string) (IdentityID, error) {
	parsed, err := parseUUID(s, "identity id")
	return IdentityID(parsed), err
}

// ParseClientID validates and converts a string into a ClientID.
func ParseClientID(s string) (ClientID, error) {
	parsed, err := parseUUID(s, "client id")
	return ClientID(parsed), err
}

// ParseAttributeKey validates an attribute key. Keys are lower-case
// snake_case tokens; empty or padded keys are caller errors.
func ParseAttributeKey(s string) (AttributeKey, error) {
	if s == "" || strings.TrimSpace(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "attribute key must be a non-empty trimmed string")
	}
	return AttributeKey(s), nil
}

// ParseCertifierCode validates a certifier code.
func ParseCertifierCode(s string) (CertifierCode, error) {
	if s == "" || strings.TrimSpace(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "certifier code must be a non-empty trimmed string")
	}
	return CertifierCode(s), nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be the nil UUID")
	}
	return parsed, nil
}
