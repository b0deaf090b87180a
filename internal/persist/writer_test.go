package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore/memory"
	"chartforge/internal/render"
	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
)

// ============================================================
// Justification for unit tests:
// The writer owns the write ordering (file before index row) and the file
// naming, the two things a restore or rescan depends on. These tests pin
// both, plus the failure paths that must not leave provenance without data.
// ============================================================

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newWriter(t *testing.T, store *memory.Store, index *memory.Index) *Writer {
	t.Helper()
	w, err := New(store, index, render.NewText(),
		WithClock(fixedClock),
		WithIDSource(func() string { return "fixed-id" }),
	)
	require.NoError(t, err)
	return w
}

func personaKramer() *artifact.Persona {
	return &artifact.Persona{
		FirstName: "Cosmo", LastName: "Kramer",
		Gender: "male", DOB: "1957-03-14",
	}
}

func docFinal(seq int, fallback bool) *artifact.Final {
	return &artifact.Final{
		Raw: artifact.Raw{
			Kind: artifact.KindDocument,
			Document: &artifact.Document{
				Title: "MRI Lumbar Spine", DocType: "IMAGING", ServiceDate: "2025-04-10",
				Sections: []artifact.Section{{Name: "Findings", Body: "Disc herniation."}},
			},
		},
		GeneratedAt: fixedClock(),
		Seq:         seq,
		Fallback:    fallback,
	}
}

func TestWriteDocument(t *testing.T) {
	store := memory.New()
	index := memory.NewIndex()
	w := newWriter(t, store, index)
	key := domain.PatientKey("210")

	ref, err := w.Write(context.Background(), Commit{
		PatientKey: key,
		Final:      docFinal(3, false),
		Identity:   personaKramer(),
	})
	require.NoError(t, err)

	assert.Equal(t, "DOC-210-003-mri_lumbar_spine.txt", ref.Filename)
	assert.Equal(t, artifact.KindDocument, ref.Kind)
	assert.False(t, ref.Fallback)

	raw, ok := store.Content(key, ref.Filename)
	require.True(t, ok)
	content := string(raw)
	assert.Contains(t, content, "--- REPORT START ---")
	assert.Contains(t, content, "PATIENT_ID: 210")
	assert.Contains(t, content, "MRN: MRN-210-2025")
	assert.Contains(t, content, "PATIENT_NAME: Cosmo Kramer")
	assert.Contains(t, content, "REPORT_DATE: 2025-06-01")

	entries, err := index.ListByPatient(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mri_lumbar_spine", string(entries[0].Title))
	assert.Equal(t, ref.Filename, entries[0].Filename)
}

func TestWriteFallbackDocumentCarriesMarkerAndViolations(t *testing.T) {
	store := memory.New()
	index := memory.NewIndex()
	w := newWriter(t, store, index)
	key := domain.PatientKey("210")

	ref, err := w.Write(context.Background(), Commit{
		PatientKey: key,
		Final:      docFinal(5, true),
		Identity:   personaKramer(),
		Violated:   []string{"required_fields", "dates_consistent"},
	})
	require.NoError(t, err)
	assert.Equal(t, "DOC-210-005-mri_lumbar_spine-NAF.txt", ref.Filename)
	assert.True(t, ref.Fallback)

	entries, err := index.ListByPatient(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Fallback)
	assert.Equal(t, []string{"required_fields", "dates_consistent"}, entries[0].Violated)
}

func TestWritePersonaAndSummaryFilenames(t *testing.T) {
	store := memory.New()
	w := newWriter(t, store, memory.NewIndex())
	key := domain.PatientKey("210")
	persona := personaKramer()

	ref, err := w.Write(context.Background(), Commit{
		PatientKey: key,
		Final: &artifact.Final{
			Raw:         artifact.Raw{Kind: artifact.KindPersona, Persona: persona},
			GeneratedAt: fixedClock(),
		},
		Identity: persona,
	})
	require.NoError(t, err)
	assert.Equal(t, "Persona_Patient_210.txt", ref.Filename)

	ref, err = w.Write(context.Background(), Commit{
		PatientKey: key,
		Final: &artifact.Final{
			Raw: artifact.Raw{Kind: artifact.KindSummary, Summary: &artifact.Summary{
				Procedure: "Lumbar fusion", Outcome: "approved",
			}},
			GeneratedAt: fixedClock(),
		},
		Identity: persona,
	})
	require.NoError(t, err)
	assert.Equal(t, "Clinical_Summary_Patient_210.txt", ref.Filename)
}

func TestWriteRejectsUnassignedSequence(t *testing.T) {
	w := newWriter(t, memory.New(), memory.NewIndex())

	_, err := w.Write(context.Background(), Commit{
		PatientKey: "210",
		Final:      docFinal(0, false),
		Identity:   personaKramer(),
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestWriteStorageFailureRecordsNothing(t *testing.T) {
	store := memory.New()
	store.FailWrites = assert.AnError
	index := memory.NewIndex()
	w := newWriter(t, store, index)

	_, err := w.Write(context.Background(), Commit{
		PatientKey: "210",
		Final:      docFinal(1, false),
		Identity:   personaKramer(),
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	entries, err := index.ListByPatient(context.Background(), "210")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteValidatesInput(t *testing.T) {
	w := newWriter(t, memory.New(), nil)

	_, err := w.Write(context.Background(), Commit{Final: docFinal(1, false)})
	require.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = w.Write(context.Background(), Commit{PatientKey: "210"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}
