package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "LEXALERT"

// newViper builds a Viper instance with YAML file type, the LEXALERT_ env
// prefix, automatic env binding and a "." → "_" key replacer so nested keys
// like "database.host" resolve to "LEXALERT_DATABASE_HOST".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerDefaults(v)
	return v
}

// registerDefaults makes every key known to viper. AutomaticEnv only resolves
// keys viper has seen, so env-only deployments need this.
func registerDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", d.Database.DBName)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)
	v.SetDefault("database.migration_path", d.Database.MigrationPath)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.default_ttl", d.Redis.DefaultTTL)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)
	v.SetDefault("kafka.client_id", d.Kafka.ClientID)
	v.SetDefault("kafka.auto_offset_reset", d.Kafka.AutoOffsetReset)
	v.SetDefault("kafka.max_retries", d.Kafka.MaxRetries)
	v.SetDefault("kafka.auto_create_topics", false)

	v.SetDefault("smtp.host", d.SMTP.Host)
	v.SetDefault("smtp.port", d.SMTP.Port)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", d.SMTP.From)
	v.SetDefault("smtp.start_tls", false)
	v.SetDefault("smtp.delivery", d.SMTP.Delivery)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron_spec", d.Scheduler.CronSpec)
	v.SetDefault("scheduler.batch_size", d.Scheduler.BatchSize)
	v.SetDefault("scheduler.concurrency", d.Scheduler.Concurrency)
	v.SetDefault("scheduler.lock_ttl", d.Scheduler.LockTTL)
	v.SetDefault("scheduler.email_claim_ttl", d.Scheduler.EmailClaimTTL)
	v.SetDefault("scheduler.run_timeout", d.Scheduler.RunTimeout)
	v.SetDefault("scheduler.run_on_startup", false)
	v.SetDefault("scheduler.publish_events", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.leeway", d.Auth.Leeway)
	v.SetDefault("auth.admins", []string{})

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.subsystem", "")
}

// Load reads the YAML file at configPath, merges LEXALERT_* environment
// overrides, applies defaults and validates the result. An empty configPath
// behaves like LoadFromEnv.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from LEXALERT_* environment variables alone.
//
//	LEXALERT_<SECTION>_<FIELD>   e.g.  LEXALERT_DATABASE_HOST, LEXALERT_SMTP_FROM
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config
// whenever the file changes. Callers apply only the safe subset (log level,
// scheduler tunables) at runtime. A change that fails validation is reported
// through onError, when non-nil, and onChange is not called.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps Load and panics on error. Intended for main().
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
