// Package memory provides an in-memory history store for unit tests and
// single-process runs.
package memory

import (
	"context"
	"sync"

	"chartforge/internal/history"
	"chartforge/pkg/domain"
)

// Store keeps history entries per patient in insertion order.
type Store struct {
	mu      sync.RWMutex
	entries map[domain.PatientKey][]history.Entry
}

// New returns an empty in-memory history store.
func New() *Store {
	return &Store{entries: make(map[domain.PatientKey][]history.Entry)}
}

func (s *Store) Append(_ context.Context, entry history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.PatientKey] = append(s.entries[entry.PatientKey], entry)
	return nil
}

func (s *Store) List(_ context.Context, key domain.PatientKey) ([]history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]history.Entry(nil), s.entries[key]...), nil
}

func (s *Store) DeleteByPatient(_ context.Context, key domain.PatientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[domain.PatientKey][]history.Entry)
	return nil
}
