// Package redis provides a Redis-backed registry store for deployments where
// multiple generator instances must share identity state.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chartforge/internal/registry"
	"chartforge/pkg/domain"
)

// Redis hash holding all identities, field per patient key.
const registryKey = "chartforge:persona_registry"

type storedIdentity struct {
	DisplayName    string `json:"display_name"`
	SourceUniverse string `json:"source_universe"`
}

// Store persists identities in a single Redis hash.
type Store struct {
	client *redis.Client
}

// New constructs a Redis-backed registry store.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Load(ctx context.Context) (map[domain.PatientKey]registry.Identity, error) {
	fields, err := s.client.HGetAll(ctx, registryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load persona registry hash: %w", err)
	}
	out := make(map[domain.PatientKey]registry.Identity, len(fields))
	for key, raw := range fields {
		var stored storedIdentity
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			// A malformed field is data corruption worth failing loudly on;
			// the registry must not silently lose uniqueness state.
			return nil, fmt.Errorf("decode identity for patient %s: %w", key, err)
		}
		out[domain.PatientKey(key)] = registry.Identity{
			DisplayName:    stored.DisplayName,
			SourceUniverse: stored.SourceUniverse,
		}
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, key domain.PatientKey, identity registry.Identity) error {
	raw, err := json.Marshal(storedIdentity{
		DisplayName:    identity.DisplayName,
		SourceUniverse: identity.SourceUniverse,
	})
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, registryKey, key.String(), raw).Err()
}

func (s *Store) Delete(ctx context.Context, key domain.PatientKey) error {
	return s.client.HDel(ctx, registryKey, key.String()).Err()
}

func (s *Store) DeleteAll(ctx context.Context) error {
	return s.client.Del(ctx, registryKey).Err()
}
