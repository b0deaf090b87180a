// Package postgres provides the durable registry store used by default in
// deployments. Schema:
//
//	CREATE TABLE IF NOT EXISTS persona_registry (
//	    patient_key     TEXT PRIMARY KEY,
//	    display_name    TEXT NOT NULL,
//	    source_universe TEXT NOT NULL DEFAULT '',
//	    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"database/sql"

	"chartforge/internal/registry"
	"chartforge/pkg/domain"
)

// Store persists identities in PostgreSQL.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed registry store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the registry table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS persona_registry (
			patient_key     TEXT PRIMARY KEY,
			display_name    TEXT NOT NULL,
			source_universe TEXT NOT NULL DEFAULT '',
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (s *Store) Load(ctx context.Context) (map[domain.PatientKey]registry.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_key, display_name, source_universe FROM persona_registry`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.PatientKey]registry.Identity)
	for rows.Next() {
		var key string
		var identity registry.Identity
		if err := rows.Scan(&key, &identity.DisplayName, &identity.SourceUniverse); err != nil {
			return nil, err
		}
		out[domain.PatientKey(key)] = identity
	}
	return out, rows.Err()
}

func (s *Store) Save(ctx context.Context, key domain.PatientKey, identity registry.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persona_registry (patient_key, display_name, source_universe, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (patient_key) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    source_universe = EXCLUDED.source_universe,
		    updated_at = now()`,
		key.String(), identity.DisplayName, identity.SourceUniverse)
	return err
}

func (s *Store) Delete(ctx context.Context, key domain.PatientKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM persona_registry WHERE patient_key = $1`, key.String())
	return err
}

func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM persona_registry`)
	return err
}
