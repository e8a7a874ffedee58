package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// =============================================================================
// Reconciler Test Suite
// =============================================================================
// The reconciler encodes the ordering-with-ties policy across write
// permission, trust level, and validity window. Every branch of the decision
// tree is exercised here because the per-attribute status codes are the basis
// of the registry's audit trail.

type ReconcilerSuite struct {
	suite.Suite
	now time.Time
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func strptr(v string) *string { return &v }

func (s *ReconcilerSuite) cert(level int, expiresIn time.Duration) *Certification {
	t := s.now.Add(expiresIn)
	return &Certification{CertifierCode: "prefecture", TrustLevel: level, ExpiresAt: &t}
}

func (s *ReconcilerSuite) eternal(level int) *Certification {
	return &Certification{CertifierCode: "civil_status", TrustLevel: level}
}

func (s *ReconcilerSuite) stored(key, value string, cert *Certification) *AttributeState {
	return &AttributeState{Key: id.AttributeKey(key), Value: value, Certification: cert}
}

func (s *ReconcilerSuite) incoming(key string, value *string, cert *Certification) IncomingAttribute {
	return IncomingAttribute{Key: id.AttributeKey(key), Value: value, Certification: cert, Writable: true}
}

// =============================================================================
// First write
// =============================================================================

func (s *ReconcilerSuite) TestFirstWrite() {
	s.Run("uncertified first write is accepted", func() {
		out, err := Reconcile(nil, s.incoming("family_name", strptr("Doe"), nil), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal("Doe", out.Value)
		s.Nil(out.Certification)
	})

	s.Run("certified first write keeps the certification", func() {
		cert := s.eternal(2)
		out, err := Reconcile(nil, s.incoming("family_name", strptr("Doe"), cert), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal("Doe", out.Value)
		s.True(cert.Equal(out.Certification))
	})

	s.Run("previous state is empty on first write", func() {
		out, err := Reconcile(nil, s.incoming("family_name", strptr("Doe"), nil), s.now)
		s.Require().NoError(err)
		s.Empty(out.PreviousValue)
		s.Nil(out.PreviousCertification)
	})
}

// =============================================================================
// Certified stored value vs weaker incoming
// =============================================================================

func (s *ReconcilerSuite) TestStoredCertificationWins() {
	s.Run("lower trust incoming is rejected as already certified", func() {
		stored := s.stored("mail", "old@x.fr", s.eternal(2))
		out, err := Reconcile(stored, s.incoming("mail", strptr("new@x.fr"), s.cert(1, 30*24*time.Hour)), s.now)
		s.Require().NoError(err)
		s.Equal(StatusValueAlreadyCertified, out.Status)
		s.False(out.Changed)
		s.Equal("old@x.fr", out.Value)
		s.Equal(2, out.Certification.TrustLevel)
	})

	s.Run("uncertified incoming cannot displace a certified value", func() {
		stored := s.stored("mail", "old@x.fr", s.cert(2, 10*24*time.Hour))
		out, err := Reconcile(stored, s.incoming("mail", strptr("new@x.fr"), nil), s.now)
		s.Require().NoError(err)
		s.Equal(StatusValueAlreadyCertified, out.Status)
		s.False(out.Changed)
		s.Equal("old@x.fr", out.Value)
	})

	s.Run("eternal stored beats dated incoming at equal trust", func() {
		stored := s.stored("mail", "old@x.fr", s.eternal(2))
		out, err := Reconcile(stored, s.incoming("mail", strptr("new@x.fr"), s.cert(2, 365*24*time.Hour)), s.now)
		s.Require().NoError(err)
		s.Equal(StatusValueAlreadyCertified, out.Status)
		s.False(out.Changed)
	})

	s.Run("shorter validity at equal trust reports longer validity held", func() {
		stored := s.stored("mail", "old@x.fr", s.cert(2, 10*24*time.Hour))
		out, err := Reconcile(stored, s.incoming("mail", strptr("old@x.fr"), s.cert(2, 5*24*time.Hour)), s.now)
		s.Require().NoError(err)
		s.Equal(StatusLongerValidityHeld, out.Status)
		s.False(out.Changed)
		s.Equal("old@x.fr", out.Value)
	})
}

// =============================================================================
// Incoming supersedes stored
// =============================================================================

func (s *ReconcilerSuite) TestIncomingWins() {
	s.Run("longer validity at equal trust supersedes value and certification", func() {
		stored := s.stored("mail", "old@x.fr", s.cert(2, 10*24*time.Hour))
		incoming := s.cert(2, 20*24*time.Hour)
		out, err := Reconcile(stored, s.incoming("mail", strptr("new@x.fr"), incoming), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal("new@x.fr", out.Value)
		s.True(incoming.Equal(out.Certification))
		s.Equal("old@x.fr", out.PreviousValue)
	})

	s.Run("higher trust supersedes regardless of validity", func() {
		stored := s.stored("mail", "old@x.fr", s.eternal(2))
		out, err := Reconcile(stored, s.incoming("mail", strptr("new@x.fr"), s.cert(3, time.Hour)), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal("new@x.fr", out.Value)
	})

	s.Run("attaching a certification to an unchanged value is a material change", func() {
		stored := s.stored("mail", "old@x.fr", nil)
		cert := s.cert(2, 30*24*time.Hour)
		out, err := Reconcile(stored, s.incoming("mail", strptr("old@x.fr"), cert), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal("old@x.fr", out.Value)
		s.True(cert.Equal(out.Certification))
	})

	s.Run("uncertified update over uncertified stored value is accepted", func() {
		stored := s.stored("phone", "0600000000", nil)
		out, err := Reconcile(stored, s.incoming("phone", strptr("0700000000"), nil), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal("0700000000", out.Value)
		s.Nil(out.Certification)
	})
}

// =============================================================================
// No-op convergence
// =============================================================================

func (s *ReconcilerSuite) TestNoChangeRequested() {
	s.Run("identical uncertified value is a no-op", func() {
		stored := s.stored("phone", "0600000000", nil)
		out, err := Reconcile(stored, s.incoming("phone", strptr("0600000000"), nil), s.now)
		s.Require().NoError(err)
		s.Equal(StatusNoChangeRequested, out.Status)
		s.False(out.Changed)
	})

	s.Run("replaying a winning eternal certification converges to a no-op", func() {
		cert := s.eternal(2)
		first, err := Reconcile(s.stored("mail", "a@x.fr", nil), s.incoming("mail", strptr("a@x.fr"), cert), s.now)
		s.Require().NoError(err)
		s.True(first.Changed)

		converged := s.stored("mail", first.Value, first.Certification)
		second, err := Reconcile(converged, s.incoming("mail", strptr("a@x.fr"), cert), s.now)
		s.Require().NoError(err)
		s.False(second.Changed)
		s.Equal(StatusNoChangeRequested, second.Status)
	})

	s.Run("replaying a winning dated certification converges to a no-op", func() {
		cert := s.cert(2, 20*24*time.Hour)
		first, err := Reconcile(s.stored("mail", "a@x.fr", s.cert(2, 10*24*time.Hour)), s.incoming("mail", strptr("a@x.fr"), cert), s.now)
		s.Require().NoError(err)
		s.True(first.Changed)

		converged := s.stored("mail", first.Value, first.Certification)
		second, err := Reconcile(converged, s.incoming("mail", strptr("a@x.fr"), cert), s.now)
		s.Require().NoError(err)
		s.False(second.Changed)
		s.Equal(StatusNoChangeRequested, second.Status)
	})
}

// =============================================================================
// Removal
// =============================================================================

func (s *ReconcilerSuite) TestRemoval() {
	s.Run("removal without write permission keeps stored state", func() {
		stored := s.stored("phone", "0600000000", s.cert(2, 10*24*time.Hour))
		in := s.incoming("phone", nil, nil)
		in.Writable = false
		out, err := Reconcile(stored, in, s.now)
		s.Require().NoError(err)
		s.Equal(StatusDeleteNotAllowed, out.Status)
		s.False(out.Changed)
		s.False(out.Deleted)
		s.Equal("0600000000", out.Value)
		s.NotNil(out.Certification, "gated removal must not mutate certification")
	})

	s.Run("writable removal clears value and certification", func() {
		stored := s.stored("phone", "0600000000", s.eternal(3))
		out, err := Reconcile(stored, s.incoming("phone", nil, nil), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.True(out.Deleted)
		s.Empty(out.Value)
		s.Nil(out.Certification)
	})

	s.Run("removal gating even beats a strongly certified stored value", func() {
		// Deletion does not consult the comparator at all: permission is the
		// only gate.
		stored := s.stored("phone", "0600000000", s.eternal(5))
		out, err := Reconcile(stored, s.incoming("phone", nil, nil), s.now)
		s.Require().NoError(err)
		s.True(out.Deleted)
	})

	s.Run("removing a never-written attribute is a no-op", func() {
		out, err := Reconcile(nil, s.incoming("phone", nil, nil), s.now)
		s.Require().NoError(err)
		s.Equal(StatusNoChangeRequested, out.Status)
		s.False(out.Changed)
	})
}

// =============================================================================
// Expiry normalization
// =============================================================================

func (s *ReconcilerSuite) TestExpiryNormalization() {
	s.Run("expired stored certification behaves like no certification", func() {
		stored := s.stored("mail", "old@x.fr", s.cert(5, -time.Hour))
		out, err := Reconcile(stored, s.incoming("mail", strptr("new@x.fr"), nil), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal("new@x.fr", out.Value)
	})

	s.Run("expired stored certification loses to any live incoming one", func() {
		stored := s.stored("mail", "old@x.fr", s.cert(5, -time.Hour))
		out, err := Reconcile(stored, s.incoming("mail", strptr("new@x.fr"), s.cert(1, time.Hour)), s.now)
		s.Require().NoError(err)
		s.Equal(StatusOK, out.Status)
		s.True(out.Changed)
		s.Equal(1, out.Certification.TrustLevel)
	})

	s.Run("the stored value survives expiry of its certification", func() {
		stored := s.stored("mail", "old@x.fr", s.cert(5, -time.Hour))
		in := s.incoming("mail", nil, nil)
		in.Writable = false
		out, err := Reconcile(stored, in, s.now)
		s.Require().NoError(err)
		s.Equal(StatusDeleteNotAllowed, out.Status)
		s.Equal("old@x.fr", out.Value)
	})
}

// =============================================================================
// Contract violations
// =============================================================================

func (s *ReconcilerSuite) TestContractViolations() {
	s.Run("missing attribute key", func() {
		_, err := Reconcile(nil, IncomingAttribute{Value: strptr("x"), Writable: true}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("non-positive trust level", func() {
		bad := &Certification{CertifierCode: "prefecture", TrustLevel: 0}
		_, err := Reconcile(nil, s.incoming("mail", strptr("a@x.fr"), bad), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("certification without a certifier code", func() {
		bad := &Certification{TrustLevel: 2}
		_, err := Reconcile(nil, s.incoming("mail", strptr("a@x.fr"), bad), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("removal request carrying a certification", func() {
		_, err := Reconcile(nil, s.incoming("mail", nil, s.eternal(2)), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Determinism
// =============================================================================

func (s *ReconcilerSuite) TestDeterminism() {
	stored := s.stored("mail", "old@x.fr", s.cert(2, 10*24*time.Hour))
	in := s.incoming("mail", strptr("new@x.fr"), s.cert(2, 20*24*time.Hour))

	first, err := Reconcile(stored, in, s.now)
	s.Require().NoError(err)
	second, err := Reconcile(stored, in, s.now)
	s.Require().NoError(err)
	s.Equal(first, second, "identical inputs must yield identical outcomes")
}
