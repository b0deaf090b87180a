// Package registry maintains the process-wide mapping of patient keys to
// persona identities. It is the single source of truth for the exclusion
// list handed to persona generation and it enforces global display-name
// uniqueness across patients.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"chartforge/pkg/domain"
	dErrors "chartforge/pkg/domain-errors"
)

// ErrConflict is returned when a registration would leave two distinct
// patient keys pointing at the same display name. The caller must resolve it
// by regenerating with an updated exclusion list.
var ErrConflict = dErrors.New(dErrors.CodeConflict, "display name already registered to another patient")

// Identity is the persona identity registered for a patient.
type Identity struct {
	DisplayName    string
	SourceUniverse string
}

// Store is the durable backing for the registry. Implementations live in
// store/memory, store/postgres and store/redis.
type Store interface {
	// Load returns all persisted identities. Called once per process.
	Load(ctx context.Context) (map[domain.PatientKey]Identity, error)
	// Save inserts or overwrites the identity for a key.
	Save(ctx context.Context, key domain.PatientKey, identity Identity) error
	// Delete removes the identity for a key. Missing keys are not an error.
	Delete(ctx context.Context, key domain.PatientKey) error
	// DeleteAll removes every identity.
	DeleteAll(ctx context.Context) error
}

// Service is the in-memory registry hydrated once per run from the store.
// Registrations go through a single-writer critical section so the global
// uniqueness invariant holds under concurrent batch processing.
type Service struct {
	store  Store
	logger *slog.Logger

	hydrate    sync.Once
	hydrateErr error

	mu         sync.Mutex
	identities map[domain.PatientKey]Identity
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a registry service over the given store.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("registry store is required")
	}
	svc := &Service{
		store:      store,
		logger:     slog.Default(),
		identities: make(map[domain.PatientKey]Identity),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ensureHydrated loads durable state into memory exactly once per process so
// bulk runs stay O(1) per lookup regardless of patient count.
func (s *Service) ensureHydrated(ctx context.Context) error {
	s.hydrate.Do(func() {
		loaded, err := s.store.Load(ctx)
		if err != nil {
			s.hydrateErr = dErrors.Wrap(err, dErrors.CodeUnavailable, "hydrate identity registry")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for key, identity := range loaded {
			s.identities[key] = identity
		}
		s.logger.Debug("identity registry hydrated", "entries", len(loaded))
	})
	return s.hydrateErr
}

// Lookup returns the registered identity for a key, if any.
func (s *Service) Lookup(ctx context.Context, key domain.PatientKey) (Identity, bool, error) {
	if err := s.ensureHydrated(ctx); err != nil {
		return Identity{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[key]
	return identity, ok, nil
}

// ExclusionList returns every registered display name, deduplicated and in
// stable order. Uniqueness is global, so the source universe is ignored.
func (s *Service) ExclusionList(ctx context.Context) ([]string, error) {
	if err := s.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	seen := make(map[string]struct{}, len(s.identities))
	names := make([]string, 0, len(s.identities))
	for _, identity := range s.identities {
		if identity.DisplayName == "" {
			continue
		}
		if _, dup := seen[identity.DisplayName]; dup {
			continue
		}
		seen[identity.DisplayName] = struct{}{}
		names = append(names, identity.DisplayName)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

// Register inserts or overwrites the identity for a key. Overwriting the same
// key is the regeneration case and is allowed; a display name already owned
// by a different key is ErrConflict and leaves registry and store untouched.
// Callers that carry an operator-supplied name set override to skip the
// uniqueness check entirely.
// The store write happens before the in-memory update so readers never
// observe an entry that is not durable.
func (s *Service) Register(ctx context.Context, key domain.PatientKey, identity Identity, override bool) error {
	if key.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "patient key is required")
	}
	if identity.DisplayName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "display name is required")
	}
	if err := s.ensureHydrated(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !override {
		for other, existing := range s.identities {
			if other != key && existing.DisplayName == identity.DisplayName {
				return fmt.Errorf("%w: %q held by patient %s", ErrConflict, identity.DisplayName, other)
			}
		}
	}

	if err := s.store.Save(ctx, key, identity); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist identity")
	}
	s.identities[key] = identity
	return nil
}

// Remove deletes the identity for a key, store first.
func (s *Service) Remove(ctx context.Context, key domain.PatientKey) error {
	if err := s.ensureHydrated(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete identity")
	}
	delete(s.identities, key)
	return nil
}

// Clear deletes every identity, store first.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.ensureHydrated(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteAll(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "clear identity registry")
	}
	s.identities = make(map[domain.PatientKey]Identity)
	return nil
}
