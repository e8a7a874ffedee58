package reconcile

import (
	"time"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// StatusCode is the closed business-outcome vocabulary reported for every
// attribute of a change request. Status codes are not errors: they are always
// returned successfully and the enclosing handler translates them into the
// response payload. The set is stable so client behavior does not silently
// change as certifiers are added.
type StatusCode string

const (
	// StatusOK: the incoming data was applied (or was a valid first write).
	StatusOK StatusCode = "ok"
	// StatusDeleteNotAllowed: a removal was requested without write
	// permission; stored state is untouched.
	StatusDeleteNotAllowed StatusCode = "delete_not_allowed"
	// StatusValueAlreadyCertified: the stored value is protected by a
	// stronger certification (higher trust, or eternal at equal trust).
	StatusValueAlreadyCertified StatusCode = "value_already_certified"
	// StatusLongerValidityHeld: equal trust, both certifications dated, and
	// the stored one is valid for at least as long.
	StatusLongerValidityHeld StatusCode = "longer_validity_held"
	// StatusNoChangeRequested: the request matches stored state exactly;
	// nothing to do.
	StatusNoChangeRequested StatusCode = "no_change_requested"
)

// AttributeState is the state of one attribute on one identity. A stored
// attribute always has a value; absence of the whole state means the
// identity never received this attribute.
type AttributeState struct {
	Key           id.AttributeKey
	Value         string
	Certification *Certification
}

// IncomingAttribute is one tuple of a change request after external
// resolution: the certification (if any) already carries its denormalized
// trust level, and Writable is the externally-resolved permission to mutate
// this attribute.
type IncomingAttribute struct {
	Key           id.AttributeKey
	Value         *string // nil requests removal of the attribute
	Certification *Certification
	Writable      bool
}

// Outcome is the per-attribute reconciliation result. It carries both sides
// of the transition so the audit recorder can reconstruct a human-reviewable
// change history from the outcome list alone.
type Outcome struct {
	Key     id.AttributeKey
	Status  StatusCode
	Changed bool
	Deleted bool

	Value         string
	Certification *Certification

	PreviousValue         string
	PreviousCertification *Certification

	// Err records a structural fault (unknown certifier, malformed input)
	// that aborted reconciliation for this attribute only. Stored state is
	// kept untouched when set.
	Err error
}

// Reconcile decides the fate of one attribute. stored is nil when the
// identity has never held this attribute. now is the caller-supplied instant
// used to normalize expiry; there is no hidden clock.
func Reconcile(stored *AttributeState, incoming IncomingAttribute, now time.Time) (Outcome, error) {
	if err := validateIncoming(incoming); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Key: incoming.Key}
	if stored != nil {
		out.PreviousValue = stored.Value
		out.PreviousCertification = stored.Certification
	}

	// Step 1: an expired stored certification is, for every rule below,
	// equivalent to no certification. The stored value is kept.
	var storedCert *Certification
	if stored != nil {
		storedCert = normalize(stored.Certification, now)
	}

	// Step 2: explicit removal request.
	if incoming.Value == nil {
		if !incoming.Writable {
			return keepStored(out, stored, StatusDeleteNotAllowed), nil
		}
		if stored == nil {
			// Removing an attribute that was never written converges to the
			// same empty state; nothing changed.
			out.Status = StatusNoChangeRequested
			return out, nil
		}
		out.Status = StatusOK
		out.Changed = true
		out.Deleted = true
		// Deletion always clears certification.
		return out, nil
	}

	// Step 4 (first-time write): no stored attribute collapses both the tie
	// and the incoming-wins branches into plain acceptance.
	if stored == nil {
		out.Status = StatusOK
		out.Changed = true
		out.Value = *incoming.Value
		out.Certification = incoming.Certification
		return out, nil
	}

	// Step 3: let the comparator rank the certifications.
	cmp := Compare(storedCert, incoming.Certification)
	switch cmp.Verdict {
	case VerdictIncomingWins:
		out.Value = *incoming.Value
		out.Certification = incoming.Certification
		out.Status = StatusOK
		// Accepting a brand-new certification on an unchanged value is still
		// a material change: attaching trust is itself an update.
		out.Changed = !(stored.Value == *incoming.Value && stored.Certification.Equal(incoming.Certification))
		if !out.Changed {
			out.Status = StatusNoChangeRequested
		}
		return out, nil

	case VerdictStoredWins:
		if stored.Value == *incoming.Value && stored.Certification.Equal(incoming.Certification) {
			// Replaying a change the identity has already converged to is a
			// no-op, not a rejection.
			return keepStored(out, stored, StatusNoChangeRequested), nil
		}
		status := StatusValueAlreadyCertified
		if cmp.Reason == ReasonLaterExpiry {
			status = StatusLongerValidityHeld
		}
		return keepStored(out, stored, status), nil

	default: // VerdictTie: no certification on either side.
		if stored.Value == *incoming.Value {
			return keepStored(out, stored, StatusNoChangeRequested), nil
		}
		out.Value = *incoming.Value
		out.Status = StatusOK
		out.Changed = true
		return out, nil
	}
}

func keepStored(out Outcome, stored *AttributeState, status StatusCode) Outcome {
	out.Status = status
	if stored != nil {
		out.Value = stored.Value
		out.Certification = stored.Certification
	}
	return out
}

// validateIncoming rejects contract violations eagerly, before any
// comparison logic runs.
func validateIncoming(incoming IncomingAttribute) error {
	if incoming.Key == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "attribute key is required")
	}
	if incoming.Value == nil && incoming.Certification != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "a removal request cannot carry a certification")
	}
	if err := incoming.Certification.Validate(); err != nil {
		return err
	}
	return nil
}
