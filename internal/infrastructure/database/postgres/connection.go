package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// sqlOpen is a variable to allow mocking in tests.
var sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// PostgresConfig holds the database configuration.
type PostgresConfig struct {
	Driver           string
	Host             string
	Port             int
	Database         string
	Username         string
	Password         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

// ConfigFrom maps the application database section onto PostgresConfig.
func ConfigFrom(c config.DatabaseConfig) PostgresConfig {
	return PostgresConfig{
		Driver:           c.Driver,
		Host:             c.Host,
		Port:             c.Port,
		Database:         c.DBName,
		Username:         c.User,
		Password:         c.Password,
		SSLMode:          c.SSLMode,
		MaxOpenConns:     c.MaxOpenConns,
		MaxIdleConns:     c.MaxIdleConns,
		ConnMaxLifetime:  c.ConnMaxLifetime,
		ConnMaxIdleTime:  c.ConnMaxIdleTime,
		StatementTimeout: c.StatementTimeout,
	}
}

// Connection manages the PostgreSQL connection pool.
type Connection struct {
	db     *sql.DB
	cfg    PostgresConfig
	logger logging.Logger
	once   sync.Once
}

// NewConnection opens the pool with the configured driver ("postgres" for
// lib/pq, "pgx" for the pgx stdlib adapter) and verifies it with a ping.
func NewConnection(cfg PostgresConfig, log logging.Logger) (*Connection, error) {
	driver := driverName(cfg.Driver)
	dsn := buildDSN(cfg)

	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open database connection")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	} else {
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}

	log.Info("Connected to PostgreSQL database",
		logging.String("driver", driver),
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.Database),
	)

	return &Connection{
		db:     db,
		cfg:    cfg,
		logger: log,
	}, nil
}

// NewConnectionWithDB wraps an existing sql.DB (for testing).
func NewConnectionWithDB(db *sql.DB, log logging.Logger) *Connection {
	return &Connection{
		db:     db,
		logger: log,
	}
}

// DB returns the underlying sql.DB instance.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// HealthCheck pings the database and warns on a saturated pool.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}

	stats := c.Stats()
	if stats.OpenConnections > 0 {
		usage := float64(stats.InUse) / float64(stats.OpenConnections)
		if usage > 0.8 {
			c.logger.Warn("High database connection pool usage",
				logging.Int("in_use", stats.InUse),
				logging.Int("open", stats.OpenConnections),
				logging.Float64("usage", usage),
			)
		}
	}

	return nil
}

// Stats returns pool statistics.
func (c *Connection) Stats() sql.DBStats {
	return c.db.Stats()
}

// Close closes the pool once.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		err = c.db.Close()
		if err == nil {
			c.logger.Info("Closed PostgreSQL database connection")
		} else {
			c.logger.Error("Failed to close PostgreSQL database connection", logging.Err(err))
		}
	})
	return err
}

// RunMigrations applies every pending migration. An empty sourcePath uses
// the migrations embedded in the binary.
func (c *Connection) RunMigrations(sourcePath string) error {
	m, err := NewMigrator(c.db, sourcePath, c.logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func driverName(d string) string {
	if d == config.DriverPGX {
		return "pgx"
	}
	return "postgres"
}

// BuildDSN exposes the connection URL for tooling such as the migrate CLI.
func BuildDSN(cfg PostgresConfig) string {
	return buildDSN(cfg)
}

func buildDSN(cfg PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.Database,
	}

	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	} else {
		q.Set("sslmode", "disable")
	}

	if cfg.StatementTimeout > 0 {
		q.Set("statement_timeout", fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds()))
	} else {
		q.Set("statement_timeout", "30000")
	}

	if cfg.LockTimeout > 0 {
		q.Set("lock_timeout", fmt.Sprintf("%d", cfg.LockTimeout.Milliseconds()))
	} else {
		q.Set("lock_timeout", "10000")
	}

	u.RawQuery = q.Encode()
	return u.String()
}
