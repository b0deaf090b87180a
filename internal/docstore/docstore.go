// Package docstore abstracts the durable artifact store: the scanner reads
// through it, the persistence writer writes through it, the purger deletes
// through it. Implementations live in subpackages.
package docstore

import (
	"context"
	"time"

	"chartforge/internal/artifact"
	"chartforge/pkg/domain"
)

// File is one stored artifact file for a patient.
type File struct {
	Name string
	Size int64
}

// Store lists and writes artifact files keyed by patient.
type Store interface {
	// List returns all files stored for a patient. A patient with no
	// folder yields an empty slice, not an error.
	List(ctx context.Context, key domain.PatientKey) ([]File, error)
	// Write durably stores content under the given file name.
	Write(ctx context.Context, key domain.PatientKey, name string, content []byte) error
	// Delete removes one file. Missing files are not an error.
	Delete(ctx context.Context, key domain.PatientKey, name string) error
	// DeleteAll removes every file for a patient.
	DeleteAll(ctx context.Context, key domain.PatientKey) error
	// ListPatients returns every patient key with stored files.
	ListPatients(ctx context.Context) ([]domain.PatientKey, error)
}

// PersistedRef identifies a durably written artifact.
type PersistedRef struct {
	PatientKey domain.PatientKey
	Kind       artifact.Kind
	Filename   string
	Seq        int
	Fallback   bool
}

// IndexEntry is the provenance row recorded after each durable write.
type IndexEntry struct {
	ID         string
	PatientKey domain.PatientKey
	Kind       artifact.Kind
	Title      artifact.NormalizedTitle
	Filename   string
	Fallback   bool
	Violated   []string
	CreatedAt  time.Time
}

// Index records and serves artifact provenance. The file store stays the
// source of truth for what exists; the index carries the audit trail
// (validation outcomes, timestamps) the operator API exposes.
type Index interface {
	Record(ctx context.Context, entry IndexEntry) error
	ListByPatient(ctx context.Context, key domain.PatientKey) ([]IndexEntry, error)
	DeleteByPatient(ctx context.Context, key domain.PatientKey) error
	DeleteKind(ctx context.Context, kind artifact.Kind) error
	DeleteAll(ctx context.Context) error
}
