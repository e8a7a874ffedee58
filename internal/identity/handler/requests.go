package handler

import (
	"strings"

	"civreg/internal/identity/service"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// maxAttributesPerRequest bounds one change request. Municipal records hold a
// few dozen attributes at most.
const maxAttributesPerRequest = 100

// UpdateAttributesRequest is the HTTP request body for
// PUT /identities/{identityID}/attributes.
type UpdateAttributesRequest struct {
	Attributes []AttributeChangeRequest `json:"attributes"`

	// Parsed values (populated by Validate)
	parsedChanges []service.AttributeChange
}

// AttributeChangeRequest is one submitted attribute tuple. A null value
// requests removal; a removal must not carry a certifier.
type AttributeChangeRequest struct {
	Key       string  `json:"key"`
	Value     *string `json:"value"`
	Certifier string  `json:"certifier,omitempty"`
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *UpdateAttributesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Attributes) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "attributes is required")
	}
	if len(r.Attributes) > maxAttributesPerRequest {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d attributes per request", maxAttributesPerRequest)
	}

	r.parsedChanges = make([]service.AttributeChange, 0, len(r.Attributes))
	seen := make(map[id.AttributeKey]struct{}, len(r.Attributes))
	for i, attr := range r.Attributes {
		key, err := id.ParseAttributeKey(strings.TrimSpace(attr.Key))
		if err != nil {
			return dErrors.Newf(dErrors.CodeInvalidInput, "attributes[%d]: invalid key %q", i, attr.Key)
		}
		if _, dup := seen[key]; dup {
			return dErrors.Newf(dErrors.CodeInvalidInput, "attributes[%d]: duplicate key %q", i, key)
		}
		seen[key] = struct{}{}

		change := service.AttributeChange{Key: key, Value: attr.Value}
		if certifier := strings.TrimSpace(attr.Certifier); certifier != "" {
			code, err := id.ParseCertifierCode(certifier)
			if err != nil {
				return dErrors.Newf(dErrors.CodeInvalidInput, "attributes[%d]: invalid certifier %q", i, attr.Certifier)
			}
			change.CertifierCode = &code
		}
		r.parsedChanges = append(r.parsedChanges, change)
	}
	return nil
}

// ParsedChanges returns the validated attribute changes.
func (r *UpdateAttributesRequest) ParsedChanges() []service.AttributeChange {
	return r.parsedChanges
}
