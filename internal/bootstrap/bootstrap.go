// Package bootstrap wires configuration into the shared infrastructure used
// by the API server, the worker and the CLI.
package bootstrap

import (
	"context"
	"os"

	"github.com/turtacn/LexAlert/internal/application/alerting"
	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/postgres"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/redis"
	"github.com/turtacn/LexAlert/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LexAlert/internal/infrastructure/notify/email"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	lc := logging.LogConfig{Level: cfg.Level, Format: cfg.Format}
	if cfg.Output != "" {
		lc.OutputPaths = []string{cfg.Output}
	}
	return logging.NewLogger(lc)
}

// Repositories groups the Postgres-backed ports.
type Repositories struct {
	Deadlines     deadline.Repository
	Notifications notification.Repository
	Ledger        notification.DeliveryLedger
	Contacts      notification.ContactDirectory
}

// Infrastructure holds the connected clients. Close releases them in reverse
// order of creation.
type Infrastructure struct {
	Config    *config.Config
	Logger    logging.Logger
	DB        *postgres.Connection
	Redis     *redis.Client
	Producer  *kafka.Producer
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AlertMetrics
	Policy    access.Policy

	repos   Repositories
	closers []func() error
}

// New connects Postgres, Redis and, when enabled, the Kafka producer.
// Migrations run first when database.auto_migrate is set.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{
		Config:  cfg,
		Logger:  log,
		Metrics: prometheus.NewNopAlertMetrics(),
		Policy:  access.NewAllowListPolicy(cfg.Auth.Admins),
	}
	if err := infra.init(ctx); err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

func (i *Infrastructure) init(ctx context.Context) error {
	cfg := i.Config

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfigFrom(cfg.Metrics), i.Logger)
		if err != nil {
			return err
		}
		i.Collector = collector
		i.Metrics = prometheus.NewAlertMetrics(collector)
	}

	db, err := postgres.NewConnection(postgres.ConfigFrom(cfg.Database), i.Logger.Named("postgres"))
	if err != nil {
		return err
	}
	i.DB = db
	i.closers = append(i.closers, db.Close)

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(MigrationSource(cfg.Database)); err != nil {
			return err
		}
	}

	rc, err := redis.NewClient(redis.ConfigFrom(cfg.Redis), i.Logger.Named("redis"))
	if err != nil {
		return err
	}
	i.Redis = rc
	i.closers = append(i.closers, rc.Close)

	if cfg.Kafka.Enabled {
		if cfg.Kafka.AutoCreateTopics {
			if err := ensureTopics(ctx, cfg.Kafka, i.Logger); err != nil {
				return err
			}
		}
		producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), i.Logger.Named("kafka"))
		if err != nil {
			return err
		}
		i.Producer = producer
		i.closers = append(i.closers, producer.Close)
	}

	i.repos = Repositories{
		Deadlines:     repositories.NewPostgresDeadlineRepo(db, i.Logger),
		Notifications: repositories.NewPostgresNotificationRepo(db, i.Logger),
		Ledger:        repositories.NewPostgresDeliveryLedger(db, i.Logger),
		Contacts:      repositories.NewPostgresContactDirectory(db, i.Logger),
	}
	return nil
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, log logging.Logger) error {
	tm, err := kafka.NewTopicManager(ctx, cfg.Brokers, log)
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg.NumPartitions, cfg.ReplicationFactor))
}

// Repositories returns the Postgres-backed ports.
func (i *Infrastructure) Repositories() Repositories {
	return i.repos
}

// Cache returns the read-through cache used by the deadline service.
func (i *Infrastructure) Cache() redis.Cache {
	opts := []redis.CacheOption{redis.WithPrefix(i.Config.Redis.KeyPrefix + "cache:")}
	if ttl := i.Config.Redis.DefaultTTL; ttl > 0 {
		opts = append(opts, redis.WithDefaultTTL(ttl))
	}
	return redis.NewRedisCache(i.Redis, i.Logger.Named("cache"), opts...)
}

// EmailSender selects the delivery path from smtp.delivery. It returns nil
// when email is disabled.
func (i *Infrastructure) EmailSender() (alerting.EmailSender, error) {
	switch i.Config.SMTP.Delivery {
	case config.DeliveryNone:
		return nil, nil
	case config.DeliveryKafka:
		if i.Producer == nil {
			return nil, errors.InvalidParam("smtp.delivery=kafka requires kafka.enabled")
		}
		return email.NewKafkaSender(i.Producer, i.Logger.Named("email")), nil
	default:
		return email.NewSMTPSender(i.Config.SMTP, i.Logger.Named("email")), nil
	}
}

// NewDispatcher builds the alert dispatcher over the shared infrastructure.
func (i *Infrastructure) NewDispatcher() (*alerting.Dispatcher, error) {
	sender, err := i.EmailSender()
	if err != nil {
		return nil, err
	}
	deps := alerting.Deps{
		Deadlines:     i.repos.Deadlines,
		Notifications: i.repos.Notifications,
		Contacts:      i.repos.Contacts,
		Metrics:       i.Metrics,
		Logger:        i.Logger.Named("dispatcher"),
	}
	if sender != nil {
		deps.Sender = sender
		deps.Deliveries = redis.NewDeliveryLog(i.Redis, i.repos.Ledger, i.Logger)
	}
	if i.Producer != nil {
		deps.Events = i.Producer
	}
	return alerting.NewDispatcher(deps, alerting.DispatcherConfigFrom(i.Config.Scheduler, i.Config.SMTP.Delivery))
}

// NewScheduler builds the cron scheduler guarded by the Redis dispatch lock.
func (i *Infrastructure) NewScheduler(runner alerting.Runner) (*alerting.Scheduler, error) {
	return alerting.NewScheduler(runner, redis.NewLockFactory(i.Redis, i.Logger), i.Metrics,
		i.Logger.Named("scheduler"), alerting.SchedulerConfigFrom(i.Config.Scheduler))
}

// Close releases every client. It is safe to call more than once.
func (i *Infrastructure) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			i.Logger.Warn("Failed to close infrastructure client", logging.Err(err))
		}
	}
	i.closers = nil
}

// MigrationSource returns the configured migration directory when it exists
// on disk, or "" to select the embedded migrations.
func MigrationSource(cfg config.DatabaseConfig) string {
	if cfg.MigrationPath == "" {
		return ""
	}
	if fi, err := os.Stat(cfg.MigrationPath); err == nil && fi.IsDir() {
		return cfg.MigrationPath
	}
	return ""
}
