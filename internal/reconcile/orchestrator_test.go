package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civreg/internal/certifier"
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// =============================================================================
// Orchestrator Test Suite
// =============================================================================

type OrchestratorSuite struct {
	suite.Suite
	now          time.Time
	orchestrator *Orchestrator
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	thirtyDays := 30 * 24 * time.Hour
	registry, err := certifier.NewRegistry([]certifier.Definition{
		{Code: "civil_status", TrustLevel: 3},
		{Code: "prefecture", TrustLevel: 2, ValidityDuration: &thirtyDays},
		{Code: "self_declared", TrustLevel: 1, ValidityDuration: &thirtyDays},
	})
	s.Require().NoError(err)

	s.orchestrator, err = NewOrchestrator(registry)
	s.Require().NoError(err)
}

func certCode(code string) *id.CertifierCode {
	c := id.CertifierCode(code)
	return &c
}

func (s *OrchestratorSuite) TestNew() {
	s.Run("nil registry returns error", func() {
		_, err := NewOrchestrator(nil)
		s.Error(err)
	})
}

func (s *OrchestratorSuite) TestApply() {
	s.Run("empty request over empty snapshot is a no-op", func() {
		result := s.orchestrator.Apply(nil, ChangeRequest{}, s.now)
		s.Empty(result.Outcomes)
		s.Empty(result.Snapshot)
		s.False(result.Changed())
	})

	s.Run("first writes build the snapshot", func() {
		result := s.orchestrator.Apply(nil, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "family_name", Value: strptr("Doe"), Writable: true},
			{Key: "mail", Value: strptr("doe@x.fr"), CertifierCode: certCode("prefecture"), Writable: true},
		}}, s.now)

		s.Require().Len(result.Outcomes, 2)
		s.True(result.Changed())
		s.Equal(StatusOK, result.Outcomes[0].Status)
		s.Equal(StatusOK, result.Outcomes[1].Status)

		s.Equal("Doe", result.Snapshot["family_name"].Value)
		s.Nil(result.Snapshot["family_name"].Certification)

		mail := result.Snapshot["mail"]
		s.Equal("doe@x.fr", mail.Value)
		s.Require().NotNil(mail.Certification)
		s.Equal(2, mail.Certification.TrustLevel)
		s.Require().NotNil(mail.Certification.ExpiresAt, "prefecture certifications are dated")
		s.Equal(s.now.Add(30*24*time.Hour), *mail.Certification.ExpiresAt)
	})

	s.Run("never-expiring certifier yields an eternal certification", func() {
		result := s.orchestrator.Apply(nil, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "birth_date", Value: strptr("1984-06-02"), CertifierCode: certCode("civil_status"), Writable: true},
		}}, s.now)

		cert := result.Snapshot["birth_date"].Certification
		s.Require().NotNil(cert)
		s.Equal(3, cert.TrustLevel)
		s.Nil(cert.ExpiresAt)
	})

	s.Run("outcomes preserve submission order", func() {
		keys := []id.AttributeKey{"family_name", "given_name", "mail", "phone"}
		var attrs []ChangeAttribute
		for _, key := range keys {
			attrs = append(attrs, ChangeAttribute{Key: key, Value: strptr("v"), Writable: true})
		}
		result := s.orchestrator.Apply(nil, ChangeRequest{Attributes: attrs}, s.now)
		s.Require().Len(result.Outcomes, len(keys))
		for i, key := range keys {
			s.Equal(key, result.Outcomes[i].Key)
		}
	})

	s.Run("mixed request reports per-attribute statuses", func() {
		snapshot := map[id.AttributeKey]AttributeState{
			"mail":  {Key: "mail", Value: "old@x.fr", Certification: &Certification{CertifierCode: "civil_status", TrustLevel: 3}},
			"phone": {Key: "phone", Value: "0600000000"},
		}

		result := s.orchestrator.Apply(snapshot, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "mail", Value: strptr("new@x.fr"), CertifierCode: certCode("self_declared"), Writable: true},
			{Key: "phone", Value: strptr("0600000000"), Writable: true},
			{Key: "family_name", Value: strptr("Doe"), Writable: true},
		}}, s.now)

		s.Require().Len(result.Outcomes, 3)
		s.Equal(StatusValueAlreadyCertified, result.Outcomes[0].Status)
		s.Equal(StatusNoChangeRequested, result.Outcomes[1].Status)
		s.Equal(StatusOK, result.Outcomes[2].Status)
		s.True(result.Changed())

		s.Equal("old@x.fr", result.Snapshot["mail"].Value, "certified value must survive")
		s.Equal("Doe", result.Snapshot["family_name"].Value)
	})

	s.Run("whole request can reconcile to a no-op", func() {
		snapshot := map[id.AttributeKey]AttributeState{
			"phone": {Key: "phone", Value: "0600000000"},
		}
		result := s.orchestrator.Apply(snapshot, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "phone", Value: strptr("0600000000"), Writable: true},
		}}, s.now)
		s.False(result.Changed())
		s.Equal(snapshot["phone"], result.Snapshot["phone"])
	})

	s.Run("removal deletes the attribute from the snapshot", func() {
		snapshot := map[id.AttributeKey]AttributeState{
			"phone": {Key: "phone", Value: "0600000000"},
		}
		result := s.orchestrator.Apply(snapshot, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "phone", Writable: true},
		}}, s.now)
		s.True(result.Changed())
		s.NotContains(result.Snapshot, id.AttributeKey("phone"))
	})

	s.Run("input snapshot is never mutated", func() {
		snapshot := map[id.AttributeKey]AttributeState{
			"phone": {Key: "phone", Value: "0600000000"},
		}
		s.orchestrator.Apply(snapshot, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "phone", Value: strptr("0700000000"), Writable: true},
			{Key: "mail", Value: strptr("a@x.fr"), Writable: true},
		}}, s.now)
		s.Len(snapshot, 1)
		s.Equal("0600000000", snapshot["phone"].Value)
	})
}

// =============================================================================
// Structural faults
// =============================================================================

func (s *OrchestratorSuite) TestApply_StructuralFaults() {
	s.Run("unknown incoming certifier aborts only that attribute", func() {
		result := s.orchestrator.Apply(nil, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "mail", Value: strptr("a@x.fr"), CertifierCode: certCode("ghost_authority"), Writable: true},
			{Key: "family_name", Value: strptr("Doe"), Writable: true},
		}}, s.now)

		s.Require().Len(result.Outcomes, 2)
		s.Require().Error(result.Outcomes[0].Err)
		s.True(dErrors.HasCode(result.Outcomes[0].Err, dErrors.CodeUnknownCertifier))
		s.NotContains(result.Snapshot, id.AttributeKey("mail"))

		s.NoError(result.Outcomes[1].Err)
		s.Equal("Doe", result.Snapshot["family_name"].Value)

		s.Len(result.Failed(), 1)
	})

	s.Run("stored certification with unregistered certifier is a fault, not uncertified", func() {
		snapshot := map[id.AttributeKey]AttributeState{
			"mail": {Key: "mail", Value: "old@x.fr", Certification: &Certification{CertifierCode: "decommissioned", TrustLevel: 2}},
		}
		result := s.orchestrator.Apply(snapshot, ChangeRequest{Attributes: []ChangeAttribute{
			{Key: "mail", Value: strptr("new@x.fr"), Writable: true},
		}}, s.now)

		s.Require().Len(result.Outcomes, 1)
		s.True(dErrors.HasCode(result.Outcomes[0].Err, dErrors.CodeUnknownCertifier))
		s.Equal("old@x.fr", result.Snapshot["mail"].Value, "stored state must be kept on fault")
		s.False(result.Changed())
	})

	s.Run("malformed input surfaces as invalid input on the outcome", func() {
		result := s.orchestrator.Apply(nil, ChangeRequest{Attributes: []ChangeAttribute{
			{Value: strptr("x"), Writable: true}, // missing key
		}}, s.now)
		s.Require().Len(result.Outcomes, 1)
		s.True(dErrors.HasCode(result.Outcomes[0].Err, dErrors.CodeInvalidInput))
	})
}
