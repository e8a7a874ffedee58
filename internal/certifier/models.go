// Package certifier holds the certifier reference data: which certifying
// processes exist, how much they are trusted, and how long their
// certifications remain valid.
package certifier

import (
	"time"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// Definition identifies a certifying process.
//
// Invariants:
//   - Code is non-empty and unique within a registry
//   - TrustLevel is a small positive integer, higher = more trusted
//   - ValidityDuration, when present, is strictly positive; absent means
//     certifications by this certifier never expire
//
// Definitions are immutable reference data: loaded once at startup and
// treated as read-only for the lifetime of a reconciliation run. Registry
// maintenance happens administratively, out of band.
type Definition struct {
	Code             id.CertifierCode
	TrustLevel       int
	ValidityDuration *time.Duration
}

// Validate enforces the construction invariants.
func (d Definition) Validate() error {
	if d.Code == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "certifier code is required")
	}
	if d.TrustLevel < 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "certifier %q trust level must be positive, got %d", d.Code, d.TrustLevel)
	}
	if d.ValidityDuration != nil && *d.ValidityDuration <= 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "certifier %q validity duration must be positive", d.Code)
	}
	return nil
}

// ExpiryFrom computes the expiration of a certification issued at the given
// instant. Returns nil for never-expiring certifiers.
func (d Definition) ExpiryFrom(issuedAt time.Time) *time.Time {
	if d.ValidityDuration == nil {
		return nil
	}
	t := issuedAt.Add(*d.ValidityDuration)
	return &t
}
