package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

// sqlFS contains the embedded SQL migration files.
//
//go:embed sql/*.sql
var sqlFS embed.FS

const versionTable = "schema_migrations"

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: versionTable})
	if err != nil {
		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}
	src, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init migrate instance: %w", err)
	}
	return m, nil
}

// Up applies all pending migrations. It is a no-op on an up-to-date schema.
func Up(db *sql.DB, logger *zerolog.Logger) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	current := uint(0)
	if v, _, verr := m.Version(); verr == nil {
		current = v
	} else if !errors.Is(verr, migrate.ErrNilVersion) {
		logger.Warn().Err(verr).Msg("migrations: unable to determine current version")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Uint("version", current).Msg("migrations: schema up to date")
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	if v, _, err := m.Version(); err == nil {
		logger.Info().Uint("from", current).Uint("to", v).Msg("migrations: applied")
	}
	return nil
}

// State is the row golang-migrate keeps in schema_migrations.
type State struct {
	Version uint
	Dirty   bool
	Applied bool
}

// Status reads the current version without touching the schema.
func Status(ctx context.Context, db *sql.DB) (State, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, versionTable,
	).Scan(&exists)
	if err != nil {
		return State{}, fmt.Errorf("migrations: check version table: %w", err)
	}
	if !exists {
		return State{}, nil
	}

	var (
		version int64
		dirty   bool
	)
	err = db.QueryRowContext(ctx, `SELECT version, dirty FROM `+versionTable+` LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("migrations: read version: %w", err)
	}
	return State{Version: uint(version), Dirty: dirty, Applied: true}, nil
}

// ForceVersion sets the recorded version and clears the dirty flag without
// running any migration.
func ForceVersion(ctx context.Context, db *sql.DB, version uint) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrations: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+versionTable); err != nil {
		return fmt.Errorf("migrations: clear version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+versionTable+` (version, dirty) VALUES ($1, false)`, int64(version)); err != nil {
		return fmt.Errorf("migrations: set version: %w", err)
	}
	return tx.Commit()
}

// FixDirtyDatabase rolls a dirty version back to the previous one so the failed
// migration is retried on the next Up.
func FixDirtyDatabase(ctx context.Context, db *sql.DB) (State, error) {
	st, err := Status(ctx, db)
	if err != nil {
		return st, err
	}
	if !st.Dirty {
		return st, nil
	}
	prev := uint(0)
	if st.Version > 0 {
		prev = st.Version - 1
	}
	if prev == 0 {
		if _, err := db.ExecContext(ctx, `DELETE FROM `+versionTable); err != nil {
			return st, fmt.Errorf("migrations: clear version: %w", err)
		}
		return State{}, nil
	}
	if err := ForceVersion(ctx, db, prev); err != nil {
		return st, err
	}
	return State{Version: prev, Applied: true}, nil
}
