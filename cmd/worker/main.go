// Command worker runs the scheduled alert dispatch and, when email delivery
// is queued through Kafka, the consumer that hands queued emails to SMTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/turtacn/LexAlert/internal/bootstrap"
	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/internal/infrastructure/notify/email"
	httpserver "github.com/turtacn/LexAlert/internal/interfaces/http"
	"github.com/turtacn/LexAlert/internal/interfaces/http/handlers"
)

const (
	defaultHealthPort = 8081
	shutdownTimeout   = 30 * time.Second
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for /healthz, /readyz and /metrics")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *configPath, *healthPort, logger); err != nil {
		logger.Error("Worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, healthPort int, logger logging.Logger) error {
	logger.Info("Starting LexAlert worker",
		logging.String("version", version),
		logging.Bool("scheduler", cfg.Scheduler.Enabled),
		logging.String("delivery", cfg.SMTP.Delivery))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	dispatcher, err := infra.NewDispatcher()
	if err != nil {
		return err
	}
	scheduler, err := infra.NewScheduler(dispatcher)
	if err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(); err != nil {
			return err
		}
	}

	consumer, err := startEmailConsumer(ctx, cfg, infra, logger)
	if err != nil {
		_ = scheduler.Stop(context.Background())
		return err
	}

	if configPath != "" {
		watchConfig(configPath, logger)
	}

	health := httpserver.NewServer(config.ServerConfig{Port: healthPort}, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(version, healthCheckers(infra)...),
		Logger:           logger,
		MetricsCollector: infra.Collector,
	}), logger.Named("health"))
	healthErr := make(chan error, 1)
	go func() { healthErr <- health.Start() }()

	select {
	case err = <-healthErr:
		logger.Error("Health server stopped", logging.Err(err))
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if stopErr := scheduler.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("Scheduler did not stop cleanly", logging.Err(stopErr))
	}
	if consumer != nil {
		if closeErr := consumer.Close(); closeErr != nil {
			logger.Warn("Email consumer did not close cleanly", logging.Err(closeErr))
		}
	}
	if stopErr := health.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("Health server did not stop cleanly", logging.Err(stopErr))
	}

	logger.Info("LexAlert worker stopped")
	return err
}

// startEmailConsumer drains the queued-email topic into SMTP. It returns nil
// when delivery does not go through Kafka. Failed messages are parked on the
// dead-letter topic through the shared producer.
func startEmailConsumer(ctx context.Context, cfg *config.Config, infra *bootstrap.Infrastructure, logger logging.Logger) (*kafka.Consumer, error) {
	if cfg.SMTP.Delivery != config.DeliveryKafka || infra.Producer == nil {
		return nil, nil
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka, kafka.TopicNotificationEmail), infra.Producer, logger.Named("consumer"))
	if err != nil {
		return nil, err
	}
	smtp := email.NewSMTPSender(cfg.SMTP, logger.Named("smtp"))
	consumer.Subscribe(kafka.TopicNotificationEmail, email.QueueHandler(smtp, logger.Named("email")))

	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Close()
		return nil, err
	}
	logger.Info("Email consumer started", logging.String("topic", kafka.TopicNotificationEmail))
	return consumer, nil
}

// watchConfig applies log level changes without a restart. Other sections
// take effect on the next start.
func watchConfig(path string, logger logging.Logger) {
	err := config.Watch(path, func(next *config.Config) {
		if logging.SetLevel(logger, next.Log.Level) {
			logger.Info("Log level reloaded", logging.String("level", next.Log.Level))
		}
	}, func(err error) {
		logger.Warn("Ignoring invalid configuration change", logging.Err(err))
	})
	if err != nil {
		logger.Warn("Configuration watch disabled", logging.Err(err))
	}
}

func healthCheckers(infra *bootstrap.Infrastructure) []handlers.HealthChecker {
	return []handlers.HealthChecker{
		handlers.CheckFunc{Component: "postgres", Fn: infra.DB.HealthCheck},
		handlers.CheckFunc{Component: "redis", Fn: infra.Redis.HealthCheck},
	}
}
