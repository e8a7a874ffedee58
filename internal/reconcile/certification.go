// Package reconcile implements the attribute certification reconciliation
// core: deciding, for each attribute of an incoming change request, whether
// the submitted value and certification supersede what the identity already
// holds.
//
// Everything in this package is pure domain logic - no I/O, no side effects,
// no clock reads. The caller supplies "now" explicitly, so two calls with
// identical inputs always yield identical outcomes.
package reconcile

import (
	"time"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// Certification is the fact that an attribute value was attested by a
// certifier. TrustLevel is a denormalized copy resolved from the certifier
// reference table when the certification was created. A nil ExpiresAt means
// the certification never expires.
type Certification struct {
	CertifierCode id.CertifierCode
	TrustLevel    int
	ExpiresAt     *time.Time
}

// Expired reports whether the certification's validity window has passed.
// A never-expiring certification is never expired.
func (c *Certification) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now)
}

// Eternal reports whether the certification carries no expiry at all.
func (c *Certification) Eternal() bool {
	return c != nil && c.ExpiresAt == nil
}

// Equal reports byte-for-byte equality of two optional certifications.
// Used to detect converged no-op writes.
func (c *Certification) Equal(other *Certification) bool {
	if c == nil || other == nil {
		return c == nil && other == nil
	}
	if c.CertifierCode != other.CertifierCode || c.TrustLevel != other.TrustLevel {
		return false
	}
	if c.ExpiresAt == nil || other.ExpiresAt == nil {
		return c.ExpiresAt == nil && other.ExpiresAt == nil
	}
	return c.ExpiresAt.Equal(*other.ExpiresAt)
}

// Validate rejects structurally malformed certifications. This is a contract
// check at the reconciler boundary, not a business outcome.
func (c *Certification) Validate() error {
	if c == nil {
		return nil
	}
	if c.CertifierCode == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "certification requires a certifier code")
	}
	if c.TrustLevel < 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "certification trust level must be positive, got %d", c.TrustLevel)
	}
	return nil
}

// normalize maps an expired certification to absent. Expired certificates
// never participate in comparisons; the attribute value they used to cover
// is kept.
func normalize(c *Certification, now time.Time) *Certification {
	if c.Expired(now) {
		return nil
	}
	return c
}
