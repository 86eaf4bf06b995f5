package cli

import (
	"context"
	"time"

	"github.com/turtacn/LexAlert/internal/application/alerting"
	"github.com/turtacn/LexAlert/internal/bootstrap"
	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/postgres"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
)

// MigrationRunner is the part of postgres.Migrator the migrate command uses.
type MigrationRunner interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
}

// DispatchFunc runs one dispatch. useLock selects the distributed lock path
// shared with the worker.
type DispatchFunc func(ctx context.Context, cfg *config.Config, log logging.Logger, useLock bool) (*alerting.RunReport, error)

// MigratorFunc opens a migration runner; the returned closer releases it.
type MigratorFunc func(cfg *config.Config, log logging.Logger, source string) (MigrationRunner, func(), error)

// Dependencies are the seams the commands call through. Zero fields are
// replaced with the real implementations.
type Dependencies struct {
	Clock       func() time.Time
	Dispatch    DispatchFunc
	OpenMigrate MigratorFunc
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Dispatch == nil {
		d.Dispatch = dispatchWithInfrastructure
	}
	if d.OpenMigrate == nil {
		d.OpenMigrate = openPostgresMigrator
	}
	return d
}

func dispatchWithInfrastructure(ctx context.Context, cfg *config.Config, log logging.Logger, useLock bool) (*alerting.RunReport, error) {
	infra, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer infra.Close()

	dispatcher, err := infra.NewDispatcher()
	if err != nil {
		return nil, err
	}
	if !useLock {
		return dispatcher.Run(ctx, time.Now())
	}
	scheduler, err := infra.NewScheduler(dispatcher)
	if err != nil {
		return nil, err
	}
	return scheduler.TriggerNow(ctx)
}

func openPostgresMigrator(cfg *config.Config, log logging.Logger, source string) (MigrationRunner, func(), error) {
	conn, err := postgres.NewConnection(postgres.ConfigFrom(cfg.Database), log)
	if err != nil {
		return nil, nil, err
	}
	if source == "" {
		source = bootstrap.MigrationSource(cfg.Database)
	}
	m, err := postgres.NewMigrator(conn.DB(), source, log)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return m, func() {
		_ = m.Close()
		_ = conn.Close()
	}, nil
}
