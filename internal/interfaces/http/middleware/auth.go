package middleware

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"net/http"
	"strings"

	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/internal/infrastructure/auth/token"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

type contextKey int

const principalContextKey contextKey = iota

// AuthMiddleware verifies bearer tokens and stores the caller's principal in
// the request context.
type AuthMiddleware struct {
	verifier  token.Verifier
	logger    logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new AuthMiddleware. Requests to skipPaths pass
// through unauthenticated.
func NewAuthMiddleware(verifier token.Verifier, logger logging.Logger, skipPaths ...string) *AuthMiddleware {
	m := &AuthMiddleware{
		verifier:  verifier,
		logger:    logger,
		skipPaths: make(map[string]bool, len(skipPaths)),
	}
	for _, p := range skipPaths {
		m.skipPaths[p] = true
	}
	return m
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r)
		if err != nil {
			m.reject(w, r, err)
			return
		}
		claims, err := m.verifier.VerifyToken(r.Context(), raw)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		ctx := WithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.Warn("Authentication failed",
		logging.String("path", r.URL.Path),
		logging.String("ip", r.RemoteAddr),
		logging.Err(err))

	code := "UNAUTHORIZED"
	msg := "authentication required"
	switch {
	case stdliberrors.Is(err, token.ErrTokenExpired):
		code, msg = "TOKEN_EXPIRED", "access token has expired"
	case stdliberrors.Is(err, token.ErrTokenMalformed), stdliberrors.Is(err, errInvalidAuthFormat):
		code, msg = "TOKEN_MALFORMED", "malformed authorization token"
	case stdliberrors.Is(err, token.ErrTokenInvalidSignature):
		code, msg = "TOKEN_INVALID", "invalid token signature"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="lexalert"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(common.NewErrorResponse(code, msg))
}

var (
	errMissingAuthHeader = errors.New(errors.ErrCodeUnauthorized, "missing authorization header")
	errInvalidAuthFormat = errors.New(errors.ErrCodeUnauthorized, "invalid authorization format")
)

func extractBearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errMissingAuthHeader
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errInvalidAuthFormat
	}
	return strings.TrimSpace(parts[1]), nil
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (access.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(access.Principal)
	return p, ok && !p.IsZero()
}
