// Package memory provides in-memory document store and index implementations
// for unit tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore"
	"chartforge/pkg/domain"
)

// Store keeps file contents in nested maps.
type Store struct {
	mu    sync.RWMutex
	files map[domain.PatientKey]map[string][]byte

	// FailWrites forces Write to fail, for persistence error tests.
	FailWrites error
}

// New returns an empty in-memory document store.
func New() *Store {
	return &Store{files: make(map[domain.PatientKey]map[string][]byte)}
}

// Content returns a stored file's bytes, for assertions.
func (s *Store) Content(key domain.PatientKey, name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[key][name]
	return content, ok
}

func (s *Store) List(_ context.Context, key domain.PatientKey) ([]docstore.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patientFiles := s.files[key]
	out := make([]docstore.File, 0, len(patientFiles))
	for name, content := range patientFiles {
		out = append(out, docstore.File{Name: name, Size: int64(len(content))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Write(_ context.Context, key domain.PatientKey, name string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if s.files[key] == nil {
		s.files[key] = make(map[string][]byte)
	}
	s.files[key][name] = append([]byte(nil), content...)
	return nil
}

func (s *Store) Delete(_ context.Context, key domain.PatientKey, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files[key], name)
	return nil
}

func (s *Store) DeleteAll(_ context.Context, key domain.PatientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

func (s *Store) ListPatients(_ context.Context) ([]domain.PatientKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]domain.PatientKey, 0, len(s.files))
	for key := range s.files {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Index keeps provenance rows in memory.
type Index struct {
	mu      sync.RWMutex
	entries []docstore.IndexEntry
}

// NewIndex returns an empty in-memory index.
func NewIndex() *Index {
	return &Index{}
}

func (i *Index) Record(_ context.Context, entry docstore.IndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = append(i.entries, entry)
	return nil
}

func (i *Index) ListByPatient(_ context.Context, key domain.PatientKey) ([]docstore.IndexEntry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []docstore.IndexEntry
	for _, entry := range i.entries {
		if entry.PatientKey == key {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (i *Index) DeleteByPatient(_ context.Context, key domain.PatientKey) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.entries[:0]
	for _, entry := range i.entries {
		if entry.PatientKey != key {
			kept = append(kept, entry)
		}
	}
	i.entries = kept
	return nil
}

func (i *Index) DeleteKind(_ context.Context, kind artifact.Kind) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.entries[:0]
	for _, entry := range i.entries {
		if entry.Kind != kind {
			kept = append(kept, entry)
		}
	}
	i.entries = kept
	return nil
}

func (i *Index) DeleteAll(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = nil
	return nil
}
