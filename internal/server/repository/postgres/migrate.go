package postgres

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (r *Repository) migrator() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "postgres.migrator.Source")
	}
	dbDriver, err := migratepg.WithInstance(r.db.DB, &migratepg.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "postgres.migrator.Driver")
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.migrator.New")
	}
	return m, nil
}

// MigrateUp applies all pending migrations. Safe to run repeatedly.
func (r *Repository) MigrateUp() error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "postgres.MigrateUp")
	}
	return nil
}

// MigrateDown rolls back a single migration step.
func (r *Repository) MigrateDown() error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "postgres.MigrateDown")
	}
	return nil
}
