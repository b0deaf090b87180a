package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartforge/pkg/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestWriteAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "210", "Persona_Patient_210.txt", []byte("persona")))
	require.NoError(t, store.Write(ctx, "210", "DOC-210-001-mri_lumbar_spine.txt", []byte("doc body")))

	files, err := store.List(ctx, "210")
	require.NoError(t, err)
	require.Len(t, files, 2)

	names := []string{files[0].Name, files[1].Name}
	assert.Contains(t, names, "Persona_Patient_210.txt")
	assert.Contains(t, names, "DOC-210-001-mri_lumbar_spine.txt")
	for _, f := range files {
		assert.Positive(t, f.Size)
	}
}

func TestListUnknownPatientIsEmpty(t *testing.T) {
	store := newStore(t)

	files, err := store.List(context.Background(), "999")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "210", "Persona_Patient_210.txt", []byte("first")))
	require.NoError(t, store.Write(ctx, "210", "Persona_Patient_210.txt", []byte("second")))

	content, err := os.ReadFile(filepath.Join(dir, "patient-reports", "210", "Persona_Patient_210.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	files, err := store.List(ctx, "210")
	require.NoError(t, err)
	assert.Len(t, files, 1, "no staging temp files left behind")
}

func TestDeleteMissingFileIsNotAnError(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Delete(context.Background(), "210", "nope.txt"))
}

func TestDeleteAllRemovesPatientFolder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "210", "Persona_Patient_210.txt", []byte("x")))
	require.NoError(t, store.DeleteAll(ctx, "210"))

	files, err := store.List(ctx, "210")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListPatientsSorted(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, key := range []domain.PatientKey{"211", "210", "pat-42"} {
		require.NoError(t, store.Write(ctx, key, "Persona_Patient_"+key.String()+".txt", []byte("x")))
	}

	keys, err := store.ListPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.PatientKey{"210", "211", "pat-42"}, keys)
}
