package handler

import (
	"time"

	"civreg/internal/identity/models"
	"civreg/internal/identity/service"
	"civreg/internal/reconcile"
)

// IdentityResponse is the HTTP representation of an identity record.
type IdentityResponse struct {
	ID         string                       `json:"id"`
	Version    int64                        `json:"version"`
	Attributes map[string]AttributeResponse `json:"attributes"`
	CreatedAt  time.Time                    `json:"created_at"`
	UpdatedAt  time.Time                    `json:"updated_at"`
}

// AttributeResponse is one stored attribute with its certification, if any.
type AttributeResponse struct {
	Value         string                 `json:"value"`
	Certification *CertificationResponse `json:"certification,omitempty"`
}

// CertificationResponse describes the certification protecting a value.
type CertificationResponse struct {
	Certifier  string     `json:"certifier"`
	TrustLevel int        `json:"trust_level"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// UpdateAttributesResponse reports the per-attribute outcomes of a change
// request, in submission order, alongside the resulting record.
type UpdateAttributesResponse struct {
	Identity IdentityResponse  `json:"identity"`
	Changed  bool              `json:"changed"`
	Outcomes []OutcomeResponse `json:"outcomes"`
}

// OutcomeResponse is the client-facing outcome of one submitted attribute.
type OutcomeResponse struct {
	Key     string `json:"key"`
	Status  string `json:"status"`
	Changed bool   `json:"changed"`
	Deleted bool   `json:"deleted,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FromIdentity converts a domain identity to an HTTP response.
func FromIdentity(identity *models.Identity) IdentityResponse {
	attributes := make(map[string]AttributeResponse, len(identity.Attributes))
	for key, state := range identity.Attributes {
		attributes[key.String()] = fromAttributeState(state)
	}
	return IdentityResponse{
		ID:         identity.ID.String(),
		Version:    identity.Version,
		Attributes: attributes,
		CreatedAt:  identity.CreatedAt,
		UpdatedAt:  identity.UpdatedAt,
	}
}

func fromAttributeState(state reconcile.AttributeState) AttributeResponse {
	resp := AttributeResponse{Value: state.Value}
	if cert := state.Certification; cert != nil {
		resp.Certification = &CertificationResponse{
			Certifier:  cert.CertifierCode.String(),
			TrustLevel: cert.TrustLevel,
			ExpiresAt:  cert.ExpiresAt,
		}
	}
	return resp
}

// FromUpdateResult converts a service update result to an HTTP response.
func FromUpdateResult(result *service.UpdateResult) UpdateAttributesResponse {
	outcomes := make([]OutcomeResponse, 0, len(result.Outcomes))
	for _, out := range result.Outcomes {
		resp := OutcomeResponse{
			Key:     out.Key.String(),
			Status:  string(out.Status),
			Changed: out.Changed,
			Deleted: out.Deleted,
		}
		if out.Err != nil {
			resp.Status = "fault"
			resp.Error = out.Err.Error()
		}
		outcomes = append(outcomes, resp)
	}
	return UpdateAttributesResponse{
		Identity: FromIdentity(result.Identity),
		Changed:  result.Changed,
		Outcomes: outcomes,
	}
}
