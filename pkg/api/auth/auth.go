// Package auth implements bearer token verification for the ZipCase API.
//
// Tokens are HS256 JWTs whose sub claim carries the ZipCase user ID. In
// production they are minted by the identity frontend from the shared
// secret; Issue exists so the CLI and tests can mint their own when they
// hold the same secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// DefaultTokenDuration is the lifetime of tokens minted by Issue.
const DefaultTokenDuration = 24 * time.Hour

// Claims are the JWT claims carried by a ZipCase bearer token. The
// subject is the user ID; no other custom claims are used.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService verifies and mints ZipCase bearer tokens.
type TokenService struct {
	secret   []byte
	issuer   string
	duration time.Duration
}

// NewTokenService creates a token service from the shared HMAC secret.
// The secret must be at least 32 characters; a zero duration selects
// DefaultTokenDuration for minted tokens.
func NewTokenService(secret string, duration time.Duration) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if duration <= 0 {
		duration = DefaultTokenDuration
	}

	return &TokenService{
		secret:   []byte(secret),
		issuer:   "zipcase",
		duration: duration,
	}, nil
}

// Issue mints a signed token for the given user ID.
func (s *TokenService) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify validates a token and returns the user ID from its subject.
// Returns ErrExpiredToken for expired tokens and ErrInvalidToken for
// everything else that fails verification.
func (s *TokenService) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
