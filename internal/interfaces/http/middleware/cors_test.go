package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func corsRequest(method, origin string, preflight bool) *http.Request {
	r := httptest.NewRequest(method, "/api/v1/deadlines", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	if preflight {
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	return r
}

func TestCORS_Preflight(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	h := NewCORSMiddleware(cfg).Handler(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, corsRequest(http.MethodOptions, "https://app.example.com", true))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"exact", []string{"https://app.example.com"}, "https://app.example.com", "https://app.example.com"},
		{"case insensitive", []string{"https://App.Example.com"}, "https://app.example.com", "https://app.example.com"},
		{"disallowed", []string{"https://app.example.com"}, "https://evil.test", ""},
		{"any", []string{"*"}, "https://whoever.test", "*"},
		{"subdomain", []string{"*.example.com"}, "https://eu.example.com", "https://eu.example.com"},
		{"subdomain mismatch", []string{"*.example.com"}, "https://example.org", ""},
		{"nothing configured", nil, "https://app.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowed
			w := httptest.NewRecorder()
			NewCORSMiddleware(cfg).Handler(okHandler()).ServeHTTP(w, corsRequest(http.MethodGet, tt.origin, false))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_SimpleRequestExposesHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	w := httptest.NewRecorder()
	NewCORSMiddleware(cfg).Handler(okHandler()).ServeHTTP(w, corsRequest(http.MethodGet, "https://app.example.com", false))

	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, w.Header().Values("Vary"), "Origin")
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	NewCORSMiddleware(DefaultCORSConfig()).Handler(okHandler()).ServeHTTP(w, corsRequest(http.MethodOptions, "", true))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
