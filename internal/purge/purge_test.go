package purge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore"
	"chartforge/internal/docstore/memory"
	"chartforge/internal/registry"
	registrymemory "chartforge/internal/registry/store/memory"
	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
)

// ============================================================
// Justification for unit tests:
// Purge is the only destructive surface in the system. Each scope's
// preserve/delete boundary is pinned here, in particular that the documents
// scope never touches personas or their registry claims, and that a patient
// purge releases the name for reuse.
// ============================================================

type PurgeSuite struct {
	suite.Suite

	store    *memory.Store
	index    *memory.Index
	registry *registry.Service
	svc      *Service
}

func (s *PurgeSuite) SetupTest() {
	s.store = memory.New()
	s.index = memory.NewIndex()

	var err error
	s.registry, err = registry.New(registrymemory.New())
	s.Require().NoError(err)

	s.svc, err = New(s.store, s.index, s.registry)
	s.Require().NoError(err)

	s.seedPatient("210", "Elaine Benes")
	s.seedPatient("211", "Leslie Knope")
}

func (s *PurgeSuite) seedPatient(key domain.PatientKey, name string) {
	ctx := context.Background()
	for _, file := range []string{
		"Persona_Patient_" + key.String() + ".txt",
		"DOC-" + key.String() + "-001-xray_chest.txt",
		"Clinical_Summary_Patient_" + key.String() + ".txt",
	} {
		s.Require().NoError(s.store.Write(ctx, key, file, []byte("content")))
	}
	s.Require().NoError(s.index.Record(ctx, docstore.IndexEntry{
		ID: "p-" + key.String(), PatientKey: key, Kind: artifact.KindPersona,
	}))
	s.Require().NoError(s.index.Record(ctx, docstore.IndexEntry{
		ID: "d-" + key.String(), PatientKey: key, Kind: artifact.KindDocument, Title: "xray_chest",
	}))
	s.Require().NoError(s.registry.Register(ctx, key, registry.Identity{DisplayName: name}, false))
}

func (s *PurgeSuite) files(key domain.PatientKey) []string {
	list, err := s.store.List(context.Background(), key)
	s.Require().NoError(err)
	names := make([]string, len(list))
	for i, f := range list {
		names[i] = f.Name
	}
	return names
}

func (s *PurgeSuite) TestPurgeAll() {
	report, err := s.svc.Purge(context.Background(), ScopeAll)
	s.Require().NoError(err)
	s.Equal(2, report.Patients)
	s.Equal(6, report.Files)

	patients, err := s.store.ListPatients(context.Background())
	s.Require().NoError(err)
	s.Empty(patients)

	names, err := s.registry.ExclusionList(context.Background())
	s.Require().NoError(err)
	s.Empty(names)

	entries, err := s.index.ListByPatient(context.Background(), "210")
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *PurgeSuite) TestPurgePersonasPreservesDocuments() {
	report, err := s.svc.Purge(context.Background(), ScopePersonas)
	s.Require().NoError(err)
	s.Equal(2, report.Patients)
	s.Equal(2, report.Files)

	s.ElementsMatch([]string{
		"Clinical_Summary_Patient_210.txt",
		"DOC-210-001-xray_chest.txt",
	}, s.files("210"))

	names, err := s.registry.ExclusionList(context.Background())
	s.Require().NoError(err)
	s.Empty(names, "purged personas release their names")
}

func (s *PurgeSuite) TestPurgeDocumentsPreservesPersonasAndRegistry() {
	report, err := s.svc.Purge(context.Background(), ScopeDocuments)
	s.Require().NoError(err)
	s.Equal(2, report.Patients)
	s.Equal(4, report.Files)

	s.Equal([]string{"Persona_Patient_210.txt"}, s.files("210"))

	names, err := s.registry.ExclusionList(context.Background())
	s.Require().NoError(err)
	s.ElementsMatch([]string{"Elaine Benes", "Leslie Knope"}, names)

	entries, err := s.index.ListByPatient(context.Background(), "210")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(artifact.KindPersona, entries[0].Kind)
}

func (s *PurgeSuite) TestPurgePatient() {
	report, err := s.svc.Patient(context.Background(), "210")
	s.Require().NoError(err)
	s.Equal(1, report.Patients)
	s.Equal(3, report.Files)

	s.Empty(s.files("210"))
	s.Equal([]string{
		"Clinical_Summary_Patient_211.txt",
		"DOC-211-001-xray_chest.txt",
		"Persona_Patient_211.txt",
	}, s.files("211"))

	_, ok, err := s.registry.Lookup(context.Background(), "210")
	s.Require().NoError(err)
	s.False(ok)

	names, err := s.registry.ExclusionList(context.Background())
	s.Require().NoError(err)
	s.Equal([]string{"Leslie Knope"}, names)
}

func (s *PurgeSuite) TestPurgePatientRequiresKey() {
	_, err := s.svc.Patient(context.Background(), "")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *PurgeSuite) TestParseScope() {
	for _, valid := range []string{"all", "personas", "documents"} {
		scope, err := ParseScope(valid)
		s.Require().NoError(err)
		s.Equal(Scope(valid), scope)
	}
	_, err := ParseScope("everything")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestPurgeSuite(t *testing.T) {
	suite.Run(t, new(PurgeSuite))
}
