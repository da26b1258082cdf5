// Package auth validates access tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by the validator.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

// Config holds JWT validation settings.
type Config struct {
	SecretKey string
	Issuer    string
	Leeway    time.Duration
}

// Claims are the access token claims understood by this service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validator validates HS256 access tokens.
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

// NewValidator creates a new token validator.
func NewValidator(cfg Config) *Validator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Validator{
		secret: []byte(cfg.SecretKey),
		parser: jwt.NewParser(opts...),
	}
}

// ValidateToken returns the user id and role carried by token.
func (v *Validator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := domain.Role(claims.Role)
	if role == "" {
		role = domain.RoleOwner
	}
	if role != domain.RoleOwner && role != domain.RoleAdmin {
		return "", "", ErrUnknownRole
	}

	return claims.Subject, role, nil
}

// IssueToken signs an access token. Used by tests and local tooling; production
// tokens come from the identity provider.
func IssueToken(secret, subject string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
