// Package auth turns bearer tokens into opaque user identifiers. Session
// issuance lives outside this system; the server only verifies.
package auth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"driftnote/internal/domain"
)

// Claims is what the engine needs from a verified token: the subject,
// nothing else.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the opaque user identifier.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenVerifier validates a bearer token and returns its claims. The
// abstraction keeps the middleware agnostic to how tokens are signed.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*Claims, error)
}

// HS256Verifier verifies tokens signed with a shared secret.
type HS256Verifier struct {
	secret []byte
	logger *slog.Logger
}

// NewHS256Verifier creates a verifier for the given shared secret.
func NewHS256Verifier(secret string, logger *slog.Logger) (*HS256Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth secret cannot be empty")
	}
	return &HS256Verifier{secret: []byte(secret), logger: logger}, nil
}

// VerifyToken parses and validates a token. Any failure collapses to
// ErrUnauthorized; callers never learn why a token was rejected.
func (v *HS256Verifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Pin the algorithm; anything else is a confusion attack.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		v.logger.Debug("token rejected", "error", err)
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}
