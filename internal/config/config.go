// Package config defines the configuration structures for LexAlert. Loading
// lives in loader.go and defaults in defaults.go; this file holds plain data
// types and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"` // "postgres" | "pgx"
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	MigrationPath    string        `mapstructure:"migration_path"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters.
type KafkaConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Brokers           []string      `mapstructure:"brokers"`
	GroupID           string        `mapstructure:"group_id"`
	ClientID          string        `mapstructure:"client_id"`
	AutoOffsetReset   string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ProducerRetries   int           `mapstructure:"producer_retries"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks      int           `mapstructure:"required_acks"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	AutoCreateTopics  bool          `mapstructure:"auto_create_topics"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	NumPartitions     int           `mapstructure:"num_partitions"`
}

// SMTPConfig holds outbound mail parameters.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	StartTLS bool          `mapstructure:"start_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// Delivery selects how the dispatcher hands off email: "smtp" sends inline,
	// "kafka" enqueues for the worker.
	Delivery string `mapstructure:"delivery"`
}

// SchedulerConfig controls the alert dispatch run.
type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CronSpec      string        `mapstructure:"cron_spec"`
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	EmailClaimTTL time.Duration `mapstructure:"email_claim_ttl"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	RunOnStartup  bool          `mapstructure:"run_on_startup"`
	PublishEvents bool          `mapstructure:"publish_events"`
}

// AuthConfig holds bearer-token verification and the admin allow-list.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Leeway    time.Duration `mapstructure:"leeway"`
	Admins    []string      `mapstructure:"admins"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration. Every component reads its settings from
// the relevant sub-struct.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first error found.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	switch c.Database.Driver {
	case DriverPostgres, DriverPGX:
	default:
		return fmt.Errorf("config: database.driver %q is invalid; expected postgres|pgx", c.Database.Driver)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("config: database.max_open_conns must be ≥ 1, got %d", c.Database.MaxOpenConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
	}

	// SMTP
	switch c.SMTP.Delivery {
	case DeliverySMTP:
		if c.SMTP.Host == "" {
			return fmt.Errorf("config: smtp.host is required when smtp.delivery is smtp")
		}
	case DeliveryKafka:
		if !c.Kafka.Enabled {
			return fmt.Errorf("config: smtp.delivery kafka requires kafka.enabled")
		}
	case DeliveryNone:
	default:
		return fmt.Errorf("config: smtp.delivery %q is invalid; expected smtp|kafka|none", c.SMTP.Delivery)
	}
	if c.SMTP.Delivery != DeliveryNone && c.SMTP.From == "" {
		return fmt.Errorf("config: smtp.from is required")
	}

	// Scheduler
	if strings.TrimSpace(c.Scheduler.CronSpec) == "" {
		return fmt.Errorf("config: scheduler.cron_spec is required")
	}
	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("config: scheduler.batch_size must be ≥ 1, got %d", c.Scheduler.BatchSize)
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("config: scheduler.concurrency must be ≥ 1, got %d", c.Scheduler.Concurrency)
	}
	if c.Scheduler.LockTTL <= 0 {
		return fmt.Errorf("config: scheduler.lock_ttl must be positive")
	}

	// Auth
	if len(c.Auth.JWTSecret) < minJWTSecretLength && c.Server.Mode == "release" {
		return fmt.Errorf("config: auth.jwt_secret must be at least %d bytes in release mode", minJWTSecretLength)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
