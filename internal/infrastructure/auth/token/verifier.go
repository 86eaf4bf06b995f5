// Package token verifies HS256 bearer tokens and maps them to principals.
package token

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/pkg/errors"
)

var (
	ErrTokenExpired          = errors.New(errors.ErrCodeUnauthorized, "token expired")
	ErrTokenInvalidSignature = errors.New(errors.ErrCodeUnauthorized, "invalid token signature")
	ErrTokenInvalidIssuer    = errors.New(errors.ErrCodeUnauthorized, "invalid token issuer")
	ErrTokenMalformed        = errors.New(errors.ErrCodeUnauthorized, "malformed token")
	ErrMissingSubject        = errors.New(errors.ErrCodeUnauthorized, "token has no subject")
)

// Claims are the registered claims plus the caller's email.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Principal maps the claims to the caller identity used by access checks.
func (c *Claims) Principal() access.Principal {
	return access.Principal{UserID: c.Subject, Email: c.Email}
}

// Verifier checks bearer tokens.
type Verifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*Claims, error)
}

// HMACVerifier validates HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	clock  func() time.Time
}

// NewHMACVerifier builds a verifier from the auth config section.
func NewHMACVerifier(cfg config.AuthConfig) (*HMACVerifier, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.InvalidParam("auth.jwt_secret is required")
	}
	return &HMACVerifier{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		clock:  time.Now,
	}, nil
}

func (v *HMACVerifier) VerifyToken(_ context.Context, rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.clock),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case stdliberrors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case stdliberrors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalidSignature
		case stdliberrors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrTokenInvalidIssuer
		case stdliberrors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		}
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "token verification failed")
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalidSignature
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// Issue signs a token for p. It backs the CLI and tests; production tokens
// come from the identity provider.
func (v *HMACVerifier) Issue(p access.Principal, ttl time.Duration) (string, error) {
	now := v.clock()
	claims := Claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to sign token")
	}
	return signed, nil
}
