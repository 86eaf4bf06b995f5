package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"

	DeliverySMTP  = "smtp"
	DeliveryKafka = "kafka"
	DeliveryNone  = "none"

	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultDBDriver      = DriverPostgres
	DefaultDBHost        = "localhost"
	DefaultDBPort        = 5432
	DefaultDBUser        = "lexalert"
	DefaultDBName        = "lexalert"
	DefaultDBMaxConns    = 25
	DefaultDBIdleConns   = 10
	DefaultMigrationPath = "internal/infrastructure/database/postgres/migrations"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 20
	DefaultRedisKeyPrefix = "lexalert:"

	DefaultKafkaBroker   = "localhost:9092"
	DefaultKafkaGroupID  = "lexalert-worker"
	DefaultKafkaClientID = "lexalert"

	DefaultSMTPHost = "localhost"
	DefaultSMTPPort = 1025
	DefaultSMTPFrom = "LexAlert <alerts@lexalert.local>"

	// Second-resolution cron: every 15 minutes on the minute.
	DefaultCronSpec             = "0 */15 * * * *"
	DefaultSchedulerBatchSize   = 200
	DefaultSchedulerConcurrency = 8

	DefaultJWTIssuer = "lexalert"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "lexalert"

	minJWTSecretLength = 32
)

// NewDefaultConfig returns a Config with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields already set by the caller are left unchanged so explicit
// configuration always wins. Call it after unmarshalling and before Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDBDriver
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = 30 * time.Second
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultMigrationPath
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// 0 is a valid explicit DB and also the default.
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 5 * time.Minute
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = DefaultKafkaClientID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.Kafka.RequiredAcks == 0 {
		cfg.Kafka.RequiredAcks = -1
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = time.Second
	}
	if cfg.Kafka.NumPartitions == 0 {
		cfg.Kafka.NumPartitions = 3
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}

	// ── SMTP ──────────────────────────────────────────────────────────────────
	if cfg.SMTP.Host == "" {
		cfg.SMTP.Host = DefaultSMTPHost
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = DefaultSMTPPort
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = DefaultSMTPFrom
	}
	if cfg.SMTP.Timeout == 0 {
		cfg.SMTP.Timeout = 10 * time.Second
	}
	if cfg.SMTP.Delivery == "" {
		cfg.SMTP.Delivery = DeliverySMTP
	}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	if cfg.Scheduler.CronSpec == "" {
		cfg.Scheduler.CronSpec = DefaultCronSpec
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = DefaultSchedulerBatchSize
	}
	if cfg.Scheduler.Concurrency == 0 {
		cfg.Scheduler.Concurrency = DefaultSchedulerConcurrency
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = 10 * time.Minute
	}
	if cfg.Scheduler.EmailClaimTTL == 0 {
		cfg.Scheduler.EmailClaimTTL = 48 * time.Hour
	}
	if cfg.Scheduler.RunTimeout == 0 {
		cfg.Scheduler.RunTimeout = 10 * time.Minute
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = DefaultJWTIssuer
	}
	if cfg.Auth.Leeway == 0 {
		cfg.Auth.Leeway = 30 * time.Second
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
