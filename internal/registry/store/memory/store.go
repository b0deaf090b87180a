// Package memory provides an in-memory registry store for tests and
// single-process development runs.
package memory

import (
	"context"
	"sync"

	"chartforge/internal/registry"
	"chartforge/pkg/domain"
)

// Store keeps identities in a mutex-guarded map.
type Store struct {
	mu         sync.RWMutex
	identities map[domain.PatientKey]registry.Identity
}

// New returns an empty in-memory registry store.
func New() *Store {
	return &Store{identities: make(map[domain.PatientKey]registry.Identity)}
}

// Seed pre-populates the store, for tests.
func (s *Store) Seed(key domain.PatientKey, identity registry.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[key] = identity
}

func (s *Store) Load(_ context.Context) (map[domain.PatientKey]registry.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.PatientKey]registry.Identity, len(s.identities))
	for key, identity := range s.identities {
		out[key] = identity
	}
	return out, nil
}

func (s *Store) Save(_ context.Context, key domain.PatientKey, identity registry.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[key] = identity
	return nil
}

func (s *Store) Delete(_ context.Context, key domain.PatientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, key)
	return nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = make(map[domain.PatientKey]registry.Identity)
	return nil
}
