package reconcile

import (
	"time"

	"civreg/internal/certifier"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// ChangeAttribute is one client-submitted tuple of a change request, before
// certification resolution. A nil Value requests removal of the attribute.
// Writable is the externally-resolved permission to mutate this attribute;
// deciding it is not this package's concern.
type ChangeAttribute struct {
	Key           id.AttributeKey
	Value         *string
	CertifierCode *id.CertifierCode
	Writable      bool
}

// ChangeRequest is the ordered set of attribute changes submitted by one
// client application.
type ChangeRequest struct {
	Attributes []ChangeAttribute
}

// Result is the orchestrator's output: the new identity snapshot and one
// outcome per submitted attribute, in submission order.
type Result struct {
	Snapshot map[id.AttributeKey]AttributeState
	Outcomes []Outcome
}

// Changed reports whether any attribute actually changed. A false result
// means the whole request was a no-op and nothing needs persisting.
func (r Result) Changed() bool {
	for _, out := range r.Outcomes {
		if out.Changed {
			return true
		}
	}
	return false
}

// Failed returns the outcomes that aborted with a structural error.
func (r Result) Failed() []Outcome {
	var failed []Outcome
	for _, out := range r.Outcomes {
		if out.Err != nil {
			failed = append(failed, out)
		}
	}
	return failed
}

// Orchestrator applies a change request to an identity snapshot. It is a
// pure function of (snapshot, request, now): no locking, no persistence.
// The caller holds whatever per-identity serialization the read-reconcile-
// write sequence needs.
type Orchestrator struct {
	registry *certifier.Registry
}

func NewOrchestrator(registry *certifier.Registry) (*Orchestrator, error) {
	if registry == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "certifier registry is required")
	}
	return &Orchestrator{registry: registry}, nil
}

// Apply reconciles every attribute of the request against the snapshot.
//
// Structural faults (unknown certifier, malformed input) abort the affected
// attribute only: its outcome carries Err and the stored state is kept, while
// the rest of the batch reconciles normally.
func (o *Orchestrator) Apply(snapshot map[id.AttributeKey]AttributeState, req ChangeRequest, now time.Time) Result {
	next := make(map[id.AttributeKey]AttributeState, len(snapshot))
	for key, state := range snapshot {
		next[key] = state
	}

	outcomes := make([]Outcome, 0, len(req.Attributes))
	for _, change := range req.Attributes {
		outcome := o.applyOne(next, change, now)
		outcomes = append(outcomes, outcome)

		if !outcome.Changed || outcome.Err != nil {
			continue
		}
		if outcome.Deleted {
			delete(next, change.Key)
			continue
		}
		next[change.Key] = AttributeState{
			Key:           change.Key,
			Value:         outcome.Value,
			Certification: outcome.Certification,
		}
	}

	return Result{Snapshot: next, Outcomes: outcomes}
}

func (o *Orchestrator) applyOne(snapshot map[id.AttributeKey]AttributeState, change ChangeAttribute, now time.Time) Outcome {
	var stored *AttributeState
	if state, ok := snapshot[change.Key]; ok {
		stored = &state
	}

	// A stored certification referencing an unregistered certifier is a
	// data-integrity fault, not an uncertified value.
	if stored != nil && stored.Certification != nil {
		if _, err := o.registry.Resolve(stored.Certification.CertifierCode); err != nil {
			return failedOutcome(change.Key, stored, err)
		}
	}

	incomingCert, err := o.resolveCertification(change, now)
	if err != nil {
		return failedOutcome(change.Key, stored, err)
	}

	outcome, err := Reconcile(stored, IncomingAttribute{
		Key:           change.Key,
		Value:         change.Value,
		Certification: incomingCert,
		Writable:      change.Writable,
	}, now)
	if err != nil {
		return failedOutcome(change.Key, stored, err)
	}
	return outcome
}

// resolveCertification turns a submitted certifier code into a full
// certification fact: the trust level is denormalized from the definition
// and the expiry computed from its validity duration, both at "now".
func (o *Orchestrator) resolveCertification(change ChangeAttribute, now time.Time) (*Certification, error) {
	if change.CertifierCode == nil {
		return nil, nil
	}
	def, err := o.registry.Resolve(*change.CertifierCode)
	if err != nil {
		return nil, err
	}
	return &Certification{
		CertifierCode: def.Code,
		TrustLevel:    def.TrustLevel,
		ExpiresAt:     def.ExpiryFrom(now),
	}, nil
}

func failedOutcome(key id.AttributeKey, stored *AttributeState, err error) Outcome {
	out := Outcome{Key: key, Err: err}
	if stored != nil {
		out.Value = stored.Value
		out.Certification = stored.Certification
		out.PreviousValue = stored.Value
		out.PreviousCertification = stored.Certification
	}
	return out
}
