// Package redis provides a Redis-backed history store. Each patient's runs
// live in one list so appends stay ordered and cheap.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chartforge/internal/history"
	"chartforge/pkg/domain"
)

const keyPrefix = "chartforge:history:"

// Store persists history entries as per-patient Redis lists.
type Store struct {
	client *redis.Client
}

// New constructs a Redis-backed history store.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func listKey(key domain.PatientKey) string {
	return keyPrefix + key.String()
}

func (s *Store) Append(ctx context.Context, entry history.Entry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	if err := s.client.RPush(ctx, listKey(entry.PatientKey), encoded).Err(); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, key domain.PatientKey) ([]history.Entry, error) {
	raw, err := s.client.LRange(ctx, listKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	out := make([]history.Entry, 0, len(raw))
	for _, item := range raw {
		var entry history.Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) DeleteByPatient(ctx context.Context, key domain.PatientKey) error {
	if err := s.client.Del(ctx, listKey(key)).Err(); err != nil {
		return fmt.Errorf("delete history list: %w", err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete history list %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan history lists: %w", err)
	}
	return nil
}
