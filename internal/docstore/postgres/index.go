// Package postgres implements the artifact provenance index in PostgreSQL.
// Schema:
//
//	CREATE TABLE IF NOT EXISTS artifact_index (
//	    id             UUID PRIMARY KEY,
//	    patient_key    TEXT NOT NULL,
//	    kind           TEXT NOT NULL,
//	    title          TEXT NOT NULL DEFAULT '',
//	    filename       TEXT NOT NULL,
//	    fallback       BOOLEAN NOT NULL DEFAULT FALSE,
//	    violated_rules TEXT[] NOT NULL DEFAULT '{}',
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore"
	"chartforge/pkg/domain"
)

// Index persists provenance rows in PostgreSQL.
type Index struct {
	db *sql.DB
}

// NewIndex constructs a PostgreSQL-backed artifact index.
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// EnsureSchema creates the index table when it does not exist yet.
func (i *Index) EnsureSchema(ctx context.Context) error {
	_, err := i.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS artifact_index (
			id             UUID PRIMARY KEY,
			patient_key    TEXT NOT NULL,
			kind           TEXT NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			filename       TEXT NOT NULL,
			fallback       BOOLEAN NOT NULL DEFAULT FALSE,
			violated_rules TEXT[] NOT NULL DEFAULT '{}',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = i.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS artifact_index_patient_key
		ON artifact_index (patient_key)`)
	return err
}

func (i *Index) Record(ctx context.Context, entry docstore.IndexEntry) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO artifact_index
			(id, patient_key, kind, title, filename, fallback, violated_rules, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.PatientKey.String(), string(entry.Kind), entry.Title.String(),
		entry.Filename, entry.Fallback, pq.Array(entry.Violated), entry.CreatedAt)
	return err
}

func (i *Index) ListByPatient(ctx context.Context, key domain.PatientKey) ([]docstore.IndexEntry, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT id, patient_key, kind, title, filename, fallback, violated_rules, created_at
		FROM artifact_index
		WHERE patient_key = $1
		ORDER BY created_at`,
		key.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docstore.IndexEntry
	for rows.Next() {
		var entry docstore.IndexEntry
		var patientKey, kind, title string
		if err := rows.Scan(&entry.ID, &patientKey, &kind, &title, &entry.Filename,
			&entry.Fallback, pq.Array(&entry.Violated), &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.PatientKey = domain.PatientKey(patientKey)
		entry.Kind = artifact.Kind(kind)
		entry.Title = artifact.NormalizedTitle(title)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (i *Index) DeleteByPatient(ctx context.Context, key domain.PatientKey) error {
	_, err := i.db.ExecContext(ctx,
		`DELETE FROM artifact_index WHERE patient_key = $1`, key.String())
	return err
}

func (i *Index) DeleteKind(ctx context.Context, kind artifact.Kind) error {
	_, err := i.db.ExecContext(ctx,
		`DELETE FROM artifact_index WHERE kind = $1`, string(kind))
	return err
}

func (i *Index) DeleteAll(ctx context.Context) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM artifact_index`)
	return err
}
