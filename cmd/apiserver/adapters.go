package main

import (
	"github.com/turtacn/LexAlert/internal/bootstrap"
	"github.com/turtacn/LexAlert/internal/interfaces/http/handlers"
)

// healthCheckers exposes the infrastructure probes to the readiness handler.
func healthCheckers(infra *bootstrap.Infrastructure) []handlers.HealthChecker {
	checkers := []handlers.HealthChecker{
		handlers.CheckFunc{Component: "postgres", Fn: infra.DB.HealthCheck},
		handlers.CheckFunc{Component: "redis", Fn: infra.Redis.HealthCheck},
	}
	return checkers
}
