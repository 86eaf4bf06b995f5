package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LexAlert/internal/interfaces/http/handlers"
	"github.com/turtacn/LexAlert/internal/interfaces/http/middleware"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	DeadlineHandler     *handlers.DeadlineHandler
	NotificationHandler *handlers.NotificationHandler
	AdminHandler        *handlers.AdminHandler
	HealthHandler       *handlers.HealthHandler

	// Middleware
	AuthMiddleware    *middleware.AuthMiddleware
	CORSMiddleware    *middleware.CORSMiddleware
	LoggingMiddleware *middleware.LoggingMiddleware

	// Infrastructure
	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter constructs the complete HTTP route tree from the given configuration.
// Health and metrics endpoints are public; everything under /api/v1 passes
// through the auth middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if cfg.CORSMiddleware != nil {
		r.Use(cfg.CORSMiddleware.Handler)
	}
	if cfg.LoggingMiddleware != nil {
		r.Use(cfg.LoggingMiddleware.Handler)
	}

	r.NotFound(jsonStatus(http.StatusNotFound, "NOT_FOUND", "route not found"))
	r.MethodNotAllowed(jsonStatus(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed"))

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}

	// Exposed publicly; restrict at the ingress.
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.Handler)
		}
		if h := cfg.DeadlineHandler; h != nil {
			api.Route("/deadlines", h.Routes)
		}
		if h := cfg.NotificationHandler; h != nil {
			api.Route("/notifications", h.Routes)
		}
		if h := cfg.AdminHandler; h != nil {
			api.Route("/admin", h.Routes)
		}
	})

	return r
}

func jsonStatus(status int, code, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := common.NewErrorResponse(code, msg)
		resp.RequestID = chimw.GetReqID(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
