// Bearer credential handling for the remote API.
package api

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/pedidolist/backend/internal/errors"
)

// TokenProvider supplies the bearer credential attached to every sync
// network call. Refresh and login flows live outside this subsystem.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken serves a fixed credential. When the credential is a JWT, an
// already-expired token is rejected locally so the drain loop surfaces a
// credential error instead of burning a network round-trip per item.
type StaticToken struct {
	value string
}

// NewStaticToken creates a StaticToken.
func NewStaticToken(value string) *StaticToken {
	return &StaticToken{value: value}
}

// Token implements TokenProvider.
func (s *StaticToken) Token(ctx context.Context) (string, error) {
	if s.value == "" {
		return "", apperrors.New(apperrors.ErrSyncUnauthorized, "no credential configured")
	}
	if exp, ok := jwtExpiry(s.value); ok && time.Now().After(exp) {
		return "", apperrors.New(apperrors.ErrSyncUnauthorized, "credential expired")
	}
	return s.value, nil
}

// jwtExpiry extracts the exp claim without verifying the signature; the
// server remains the authority, this only short-circuits the obvious case.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		// Opaque (non-JWT) tokens are passed through as-is
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
