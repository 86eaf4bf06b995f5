package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*" for any, or "*.example.com"
	// for subdomains.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
}

// DefaultCORSConfig allows no origins until some are configured.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}
}

// CORSMiddleware answers preflight requests and decorates responses for
// allowed origins. Disallowed origins get no CORS headers.
type CORSMiddleware struct {
	methods  string
	headers  string
	exposed  string
	maxAge   string
	any      bool
	exact    map[string]bool
	suffixes []string
}

// NewCORSMiddleware creates a new CORS middleware with the given config.
func NewCORSMiddleware(cfg CORSConfig) *CORSMiddleware {
	m := &CORSMiddleware{
		methods: strings.Join(cfg.AllowedMethods, ", "),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
		exposed: strings.Join(cfg.ExposedHeaders, ", "),
		exact:   make(map[string]bool, len(cfg.AllowedOrigins)),
	}
	if cfg.MaxAge > 0 {
		m.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	for _, o := range cfg.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch {
		case o == "*":
			m.any = true
		case strings.HasPrefix(o, "*."):
			m.suffixes = append(m.suffixes, o[1:])
		case o != "":
			m.exact[o] = true
		}
	}
	return m
}

func (m *CORSMiddleware) allowed(origin string) bool {
	if m.any {
		return true
	}
	origin = strings.ToLower(origin)
	if m.exact[origin] {
		return true
	}
	for _, s := range m.suffixes {
		if strings.HasSuffix(origin, s) {
			return true
		}
	}
	return false
}

func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !m.allowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		if m.any {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", m.methods)
			h.Set("Access-Control-Allow-Headers", m.headers)
			if m.maxAge != "" {
				h.Set("Access-Control-Max-Age", m.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if m.exposed != "" {
			h.Set("Access-Control-Expose-Headers", m.exposed)
		}
		next.ServeHTTP(w, r)
	})
}
