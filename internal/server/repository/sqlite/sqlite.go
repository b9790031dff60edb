// Package sqlite implements the observation store on an embedded SQLite
// database. It exists for single-node deployments and for tests that want
// the full stack without a Postgres server; the postgres package is the
// production store with identical semantics.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rescrv/brief-measure/internal/server/repository"
	"github.com/rescrv/brief-measure/internal/shared/models"
)

type Repository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func New(dsn string, queryTimeout time.Duration) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection keeps the cascade
	// delete and the foreign_keys pragma on the same handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS api_keys (
			key BLOB PRIMARY KEY
		);
		CREATE TABLE IF NOT EXISTS observations (
			id TEXT PRIMARY KEY,
			key BLOB NOT NULL REFERENCES api_keys(key) ON DELETE CASCADE,
			obs BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_observations_key_created
			ON observations(key, created_at);
	`); err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db, queryTimeout: queryTimeout}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

func (r *Repository) StoreAPIKey(ctx context.Context, key models.APIKey) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys(key) VALUES(?) ON CONFLICT DO NOTHING`, key[:])
	return err
}

func (r *Repository) APIKeyExists(ctx context.Context, key models.APIKey) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM api_keys WHERE key = ?`, key[:]).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) DeleteAPIKey(ctx context.Context, key models.APIKey) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE key = ?`, key[:])
	return err
}

func (r *Repository) CountRecentObservations(ctx context.Context, key models.APIKey, since time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE key = ? AND created_at >= ?`,
		key[:], since.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) InsertObservation(ctx context.Context, key models.APIKey, id uuid.UUID, obs [models.ObservationLength]byte) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO observations(id, key, obs, created_at) VALUES(?,?,?,?)`,
		id.String(), key[:], obs[:], time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return repository.ErrDuplicateID
		}
		return err
	}
	return nil
}

func (r *Repository) FetchObservations(ctx context.Context, key models.APIKey, limit int64) ([]models.Observation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	// Canonical UUIDv7 text is fixed-width lowercase hex, so lexical
	// descending order equals reverse-chronological order.
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, obs FROM observations WHERE key = ? ORDER BY id DESC LIMIT ?`,
		key[:], limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Observation{}
	for rows.Next() {
		var id string
		var obs []byte
		if err := rows.Scan(&id, &obs); err != nil {
			return nil, err
		}
		out = append(out, models.Observation{UUIDv7: id, Observation: string(obs)})
	}
	return out, rows.Err()
}
