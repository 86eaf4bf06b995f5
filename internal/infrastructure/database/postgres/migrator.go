package postgres

import (
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/LexAlert/internal/infrastructure/database/postgres/migrations"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Migrator: golang-migrate over an existing pool
// ─────────────────────────────────────────────────────────────────────────────

// Migrator applies schema migrations. The sql.DB stays owned by the caller.
type Migrator struct {
	m      *migrate.Migrate
	src    source.Driver
	logger logging.Logger
}

// NewMigrator builds a migrator over db. sourcePath selects a directory of
// .sql files; empty means the embedded set.
func NewMigrator(db *sql.DB, sourcePath string, log logging.Logger) (*Migrator, error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}

	var (
		m   *migrate.Migrate
		src source.Driver
	)
	if sourcePath == "" {
		src, err = iofs.New(migrations.FS, ".")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to open embedded migrations")
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance("file://"+sourcePath, "postgres", driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create migrate instance")
	}

	return &Migrator{m: m, src: src, logger: log}, nil
}

// Up applies all pending migrations. No pending migrations is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		version, _, _ := mg.m.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to run migrations (current version: %d)", version))
	}

	version, dirty, err := mg.Status()
	if err != nil {
		mg.logger.Warn("Failed to get migration version", logging.Err(err))
	}
	mg.logger.Info("Database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.InvalidParam(fmt.Sprintf("steps must be greater than 0, got %d", steps))
	}
	if err := mg.m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return errors.InvalidState("no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to rollback %d step(s)", steps))
	}
	mg.logger.Info("Database migrations rolled back", logging.Int("steps", steps))
	return nil
}

// Status returns the applied version and dirty flag. A database with no
// migrations reports version 0.
func (mg *Migrator) Status() (version uint, dirty bool, err error) {
	version, dirty, err = mg.m.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return version, dirty, nil
}

// Force sets the version without running migrations. Used to recover from a
// dirty state after a partially applied migration.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to force version %d", version))
	}
	mg.logger.Warn("Migration version forced", logging.Int("version", version))
	return nil
}

// Close releases the migration source. migrate.Close would also close the
// pool, which the caller owns.
func (mg *Migrator) Close() error {
	if mg.src != nil {
		return mg.src.Close()
	}
	return nil
}
