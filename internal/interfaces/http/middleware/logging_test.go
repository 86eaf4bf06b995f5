package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/prometheus"
)

func newObservedRouter(t *testing.T) (http.Handler, *observer.ObservedLogs, prometheus.MetricsCollector) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfigFrom(config.MetricsConfig{Namespace: "test"}), logging.NewNopLogger())
	require.NoError(t, err)
	mw := NewLoggingMiddleware(logging.NewLoggerFromCore(core), prometheus.NewAlertMetrics(collector), DefaultLoggingConfig())

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	return r, logs, collector
}

func TestLogging_LevelsByStatus(t *testing.T) {
	h, logs, _ := newObservedRouter(t)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(200), entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestLogging_SkipsProbes(t *testing.T) {
	h, logs, _ := newObservedRouter(t)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Zero(t, logs.Len())
}

func TestLogging_RecordsRoutePattern(t *testing.T) {
	h, _, collector := newObservedRouter(t)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))

	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `route="/items/{id}"`)
	assert.NotContains(t, string(body), `/items/42`)
}
