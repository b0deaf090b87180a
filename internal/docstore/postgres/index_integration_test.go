//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore"
	"chartforge/internal/docstore/postgres"
	"chartforge/pkg/domain"
	"chartforge/pkg/testutil/containers"
)

type PostgresIndexSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	index *postgres.Index
}

func TestPostgresIndexSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresIndexSuite))
}

func (s *PostgresIndexSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.index = postgres.NewIndex(s.pg.DB)
	s.Require().NoError(s.index.EnsureSchema(context.Background()))
}

func (s *PostgresIndexSuite) SetupTest() {
	s.Require().NoError(s.index.DeleteAll(context.Background()))
}

func (s *PostgresIndexSuite) record(key domain.PatientKey, kind artifact.Kind, title artifact.NormalizedTitle, at time.Time) docstore.IndexEntry {
	entry := docstore.IndexEntry{
		ID:         uuid.NewString(),
		PatientKey: key,
		Kind:       kind,
		Title:      title,
		Filename:   "DOC-" + key.String() + "-001-" + title.String() + ".txt",
		CreatedAt:  at,
	}
	s.Require().NoError(s.index.Record(context.Background(), entry))
	return entry
}

func (s *PostgresIndexSuite) TestRecordAndListOrderedByTime() {
	base := time.Now().UTC().Truncate(time.Second)

	second := s.record("210", artifact.KindDocument, "physical_therapy_notes", base.Add(time.Minute))
	first := s.record("210", artifact.KindDocument, "mri_lumbar_spine", base)
	s.record("211", artifact.KindDocument, "cardiology_consult", base)

	entries, err := s.index.ListByPatient(context.Background(), "210")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(first.ID, entries[0].ID, "rows come back in creation order")
	s.Equal(second.ID, entries[1].ID)
}

func (s *PostgresIndexSuite) TestViolatedRulesRoundTrip() {
	ctx := context.Background()

	entry := docstore.IndexEntry{
		ID:         uuid.NewString(),
		PatientKey: "210",
		Kind:       artifact.KindDocument,
		Title:      "mri_lumbar_spine",
		Filename:   "DOC-210-001-mri_lumbar_spine-NAF.txt",
		Fallback:   true,
		Violated:   []string{"body_present", "required_fields"},
		CreatedAt:  time.Now().UTC(),
	}
	s.Require().NoError(s.index.Record(ctx, entry))

	entries, err := s.index.ListByPatient(ctx, "210")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].Fallback)
	s.Equal([]string{"body_present", "required_fields"}, entries[0].Violated)
}

func (s *PostgresIndexSuite) TestDeleteByPatient() {
	base := time.Now().UTC()
	s.record("210", artifact.KindDocument, "mri_lumbar_spine", base)
	s.record("211", artifact.KindDocument, "cardiology_consult", base)

	s.Require().NoError(s.index.DeleteByPatient(context.Background(), "210"))

	gone, err := s.index.ListByPatient(context.Background(), "210")
	s.Require().NoError(err)
	s.Empty(gone)

	kept, err := s.index.ListByPatient(context.Background(), "211")
	s.Require().NoError(err)
	s.Len(kept, 1)
}

func (s *PostgresIndexSuite) TestDeleteKindSparesOtherKinds() {
	base := time.Now().UTC()
	s.record("210", artifact.KindDocument, "mri_lumbar_spine", base)
	s.record("210", artifact.KindPersona, "", base)

	s.Require().NoError(s.index.DeleteKind(context.Background(), artifact.KindDocument))

	entries, err := s.index.ListByPatient(context.Background(), "210")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(artifact.KindPersona, entries[0].Kind)
}
