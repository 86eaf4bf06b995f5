package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/prometheus"
)

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are neither logged nor measured.
	SkipPaths []string

	// SlowThreshold is the duration above which a request logs at warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips probes and the scrape endpoint.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// LoggingMiddleware logs each request and records its latency.
type LoggingMiddleware struct {
	logger  logging.Logger
	metrics *prometheus.AlertMetrics
	config  LoggingConfig
	skip    map[string]bool
}

// NewLoggingMiddleware creates the middleware. metrics may be nil.
func NewLoggingMiddleware(logger logging.Logger, metrics *prometheus.AlertMetrics, config LoggingConfig) *LoggingMiddleware {
	if metrics == nil {
		metrics = prometheus.NewNopAlertMetrics()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	return &LoggingMiddleware{logger: logger, metrics: metrics, config: config, skip: skip}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.metrics.RecordHTTPRequest(r.Method, routePattern(r), status, duration)

		fields := []logging.Field{
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", ww.BytesWritten()),
			logging.String("remote_addr", r.RemoteAddr),
			logging.String("request_id", chimw.GetReqID(r.Context())),
		}
		if p, ok := PrincipalFromContext(r.Context()); ok {
			fields = append(fields, logging.String("user_id", p.UserID))
		}

		switch {
		case status >= 500:
			m.logger.Error("HTTP request completed with server error", fields...)
		case status >= 400:
			m.logger.Warn("HTTP request completed with client error", fields...)
		case m.config.SlowThreshold > 0 && duration >= m.config.SlowThreshold:
			m.logger.Warn("HTTP request completed (slow)", fields...)
		default:
			m.logger.Info("HTTP request completed", fields...)
		}
	})
}

// routePattern keeps metric label cardinality bounded by using the matched
// chi pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
