package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scopes a token can carry.
const (
	ScopeViewer   = "viewer"
	ScopeOperator = "operator"
)

// DefaultTokenTTL is used when GenerateToken is given a non-positive TTL.
const DefaultTokenTTL = 60 * time.Minute

// Token errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrEmptySecret  = errors.New("auth: signing secret is empty")
	ErrUnknownScope = errors.New("auth: unknown scope")
)

// Claims are the JWT claims carried by an API token.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// CanWrite reports whether the token may change devices.
func (c *Claims) CanWrite() bool {
	return c.Scope == ScopeOperator
}

// ValidScope reports whether scope is one of the known scopes.
func ValidScope(scope string) bool {
	return scope == ScopeViewer || scope == ScopeOperator
}

// GenerateToken creates a signed token for subject with the given scope.
func GenerateToken(subject, scope, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if !ValidScope(scope) {
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature, expiry and claims.
// All failures wrap ErrTokenInvalid.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !ValidScope(claims.Scope) {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrTokenInvalid, claims.Scope)
	}

	return claims, nil
}
