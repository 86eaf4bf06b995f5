// Command apiserver serves the LexAlert REST API.
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

	appDeadline "github.com/turtacn/LexAlert/internal/application/deadline"
	appNotification "github.com/turtacn/LexAlert/internal/application/notification"
	"github.com/turtacn/LexAlert/internal/bootstrap"
	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/auth/token"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/LexAlert/internal/interfaces/http"
	"github.com/turtacn/LexAlert/internal/interfaces/http/handlers"
	"github.com/turtacn/LexAlert/internal/interfaces/http/middleware"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("API server exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	logger.Info("Starting LexAlert API server",
		logging.String("version", version),
		logging.String("addr", cfg.Server.Addr()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	verifier, err := token.NewHMACVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	repos := infra.Repositories()
	deadlineSvc := appDeadline.NewService(repos.Deadlines, infra.Policy, logger.Named("deadline"),
		appDeadline.WithCache(infra.Cache(), cfg.Redis.DefaultTTL),
		appDeadline.WithContacts(repos.Contacts))
	notificationSvc := appNotification.NewService(repos.Notifications, infra.Policy, logger.Named("notification"))

	// Manual dispatch shares the worker's lock, so it never overlaps a cron run.
	dispatcher, err := infra.NewDispatcher()
	if err != nil {
		return err
	}
	scheduler, err := infra.NewScheduler(dispatcher)
	if err != nil {
		return err
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.Server.CORSOrigins
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		DeadlineHandler:     handlers.NewDeadlineHandler(deadlineSvc, logger),
		NotificationHandler: handlers.NewNotificationHandler(notificationSvc, logger),
		AdminHandler:        handlers.NewAdminHandler(scheduler, infra.Policy, logger),
		HealthHandler:       handlers.NewHealthHandler(version, healthCheckers(infra)...),
		AuthMiddleware:      middleware.NewAuthMiddleware(verifier, logger),
		CORSMiddleware:      middleware.NewCORSMiddleware(cors),
		LoggingMiddleware:   middleware.NewLoggingMiddleware(logger, infra.Metrics, middleware.DefaultLoggingConfig()),
		Logger:              logger,
		MetricsCollector:    infra.Collector,
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
