package reconcile

// Verdict is the three-way outcome of comparing a stored certification
// against an incoming one.
type Verdict int

const (
	// VerdictTie means neither side carries a certification. It is the only
	// genuine tie: once both sides are present the precedence rules form a
	// total order.
	VerdictTie Verdict = iota
	VerdictIncomingWins
	VerdictStoredWins
)

func (v Verdict) String() string {
	switch v {
	case VerdictIncomingWins:
		return "incoming_wins"
	case VerdictStoredWins:
		return "stored_wins"
	default:
		return "tie"
	}
}

// StoredWinReason records why the stored certification prevailed. The
// reconciler maps it onto the client-facing status vocabulary: trust or
// durability superiority reads as "value already certified", losing the
// expiry tie-break reads as "longer validity held".
type StoredWinReason int

const (
	ReasonNone StoredWinReason = iota
	// ReasonOnlyStoredCertified: stored is certified, incoming carries no
	// certification at all.
	ReasonOnlyStoredCertified
	// ReasonHigherTrust: stored certifier outranks the incoming one.
	ReasonHigherTrust
	// ReasonEternalOverDated: equal trust, but the stored certification never
	// expires while the incoming one does. An eternal certification cannot be
	// downgraded to a dated one.
	ReasonEternalOverDated
	// ReasonLaterExpiry: equal trust, both dated, stored expires at the same
	// instant or later.
	ReasonLaterExpiry
)

// Comparison is the comparator's full answer.
type Comparison struct {
	Verdict Verdict
	Reason  StoredWinReason
}

// Compare decides which of two optional certifications is stronger.
// Callers must normalize expired certifications to nil first; Reconcile does
// this for the stored side before delegating here.
//
// Rules, applied in order (first match decides):
//  1. stored absent, incoming present  -> incoming wins
//  2. stored present, incoming absent  -> stored wins
//  3. both absent                      -> tie
//  4. strictly higher trust level wins
//  5. equal trust: eternal beats dated; both eternal -> incoming wins
//     (last writer at equal strength); both dated -> strictly later expiry
//     wins, exact tie keeps stored.
func Compare(stored, incoming *Certification) Comparison {
	switch {
	case stored == nil && incoming == nil:
		return Comparison{Verdict: VerdictTie}
	case stored == nil:
		return Comparison{Verdict: VerdictIncomingWins}
	case incoming == nil:
		return Comparison{Verdict: VerdictStoredWins, Reason: ReasonOnlyStoredCertified}
	}

	if incoming.TrustLevel > stored.TrustLevel {
		return Comparison{Verdict: VerdictIncomingWins}
	}
	if incoming.TrustLevel < stored.TrustLevel {
		return Comparison{Verdict: VerdictStoredWins, Reason: ReasonHigherTrust}
	}

	// Equal trust level: compare durability.
	switch {
	case stored.Eternal() && incoming.Eternal():
		// Last writer wins at equal strength.
		return Comparison{Verdict: VerdictIncomingWins}
	case stored.Eternal():
		return Comparison{Verdict: VerdictStoredWins, Reason: ReasonEternalOverDated}
	case incoming.Eternal():
		return Comparison{Verdict: VerdictIncomingWins}
	}

	if incoming.ExpiresAt.After(*stored.ExpiresAt) {
		return Comparison{Verdict: VerdictIncomingWins}
	}
	// Strictly earlier or an exact tie on expiry keeps the stored side.
	return Comparison{Verdict: VerdictStoredWins, Reason: ReasonLaterExpiry}
}
