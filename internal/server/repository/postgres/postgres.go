// Package postgres implements the production observation store on top of
// Postgres via bun. Schema management lives in migrate.go; the server binary
// never migrates on its own, the migrate binary does.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/rescrv/brief-measure/internal/server/config"
	"github.com/rescrv/brief-measure/internal/server/repository"
	"github.com/rescrv/brief-measure/internal/shared/models"
)

type APIKeyRow struct {
	bun.BaseModel `bun:"table:api_keys"`

	Key []byte `bun:"key,pk"`
}

type ObservationRow struct {
	bun.BaseModel `bun:"table:observations"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Key       []byte    `bun:"key,notnull"`
	Obs       []byte    `bun:"obs,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:now()"`
}

type Repository struct {
	db           *bun.DB
	queryTimeout time.Duration
}

func New(cfg config.Config) (*Repository, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DatabaseDSN),
		pgdriver.WithDialTimeout(cfg.DatabaseConnectTimeout),
	)
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db := bun.NewDB(sqldb, pgdialect.New())

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.DatabaseConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "postgres.New.Ping")
	}
	return &Repository{db: db, queryTimeout: cfg.DatabaseQueryTimeout}, nil
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
	row := &APIKeyRow{Key: key[:]}
	_, err := r.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "postgres.StoreAPIKey.Insert")
	}
	return nil
}

func (r *Repository) APIKeyExists(ctx context.Context, key models.APIKey) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	exists, err := r.db.NewSelect().
		Model((*APIKeyRow)(nil)).
		Where("key = ?", key[:]).
		Exists(ctx)
	if err != nil {
		return false, errors.Wrap(err, "postgres.APIKeyExists.Select")
	}
	return exists, nil
}

func (r *Repository) DeleteAPIKey(ctx context.Context, key models.APIKey) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.NewDelete().
		Model((*APIKeyRow)(nil)).
		Where("key = ?", key[:]).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "postgres.DeleteAPIKey.Delete")
	}
	return nil
}

func (r *Repository) CountRecentObservations(ctx context.Context, key models.APIKey, since time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	count, err := r.db.NewSelect().
		Model((*ObservationRow)(nil)).
		Where("key = ? AND created_at >= ?", key[:], since).
		Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "postgres.CountRecentObservations.Count")
	}
	return int64(count), nil
}

func (r *Repository) InsertObservation(ctx context.Context, key models.APIKey, id uuid.UUID, obs [models.ObservationLength]byte) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	row := &ObservationRow{ID: id, Key: key[:], Obs: obs[:]}
	_, err := r.db.NewInsert().
		Model(row).
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation {
			return repository.ErrDuplicateID
		}
		return errors.Wrap(err, "postgres.InsertObservation.Insert")
	}
	return nil
}

// pgUniqueViolation is SQLSTATE 23505.
const pgUniqueViolation = "23505"

func (r *Repository) FetchObservations(ctx context.Context, key models.APIKey, limit int64) ([]models.Observation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var rows []ObservationRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("key = ?", key[:]).
		Order("id DESC").
		Limit(int(limit)).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.FetchObservations.Select")
	}
	out := make([]models.Observation, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Observation{
			UUIDv7:      row.ID.String(),
			Observation: string(row.Obs),
		})
	}
	return out, nil
}
