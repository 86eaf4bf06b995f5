package http

import (
	"context"
	stdliberrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

const defaultShutdownTimeout = 30 * time.Second

// Server wraps http.Server with the configured timeouts and logging.
type Server struct {
	srv             *http.Server
	router          http.Handler
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// NewServer creates a server for router listening on cfg.Addr().
func NewServer(cfg config.ServerConfig, router http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}
	return &Server{
		router:          router,
		shutdownTimeout: shutdown,
		logger:          logger.Named("http"),
		srv: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadTimeout:       orDefault(cfg.ReadTimeout, 15*time.Second),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      orDefault(cfg.WriteTimeout, 15*time.Second),
			IdleTimeout:       orDefault(cfg.IdleTimeout, 60*time.Second),
		},
	}
}

// Start blocks serving requests until Stop is called. A graceful shutdown is
// not reported as an error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to listen")
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", logging.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, errors.ErrCodeInternal, "http server failed")
	}
	return nil
}

// Stop drains in-flight requests, bounded by the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "server shutdown failed")
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
