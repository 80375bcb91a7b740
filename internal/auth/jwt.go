// Package auth provides the authentication primitives for the Glimmr API:
// JWT access/refresh token creation and verification, password hashing, and
// API key generation/validation. The request-time logic that applies these
// primitives lives in internal/middleware/auth.go.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTypeAccess marks short-lived tokens used on every request.
	TokenTypeAccess = "access"

	// TokenTypeRefresh marks long-lived tokens exchangeable for a new pair.
	TokenTypeRefresh = "refresh"
)

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims is the JWT claims structure for both access and refresh tokens.
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// generateRandomSecret creates a cryptographically secure random secret for
// development use when no secret is configured.
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ConfigureJWTSecret installs the signing secret from configuration. In
// production an empty secret is a startup error; outside production a random
// secret is generated so local instances work without setup, at the cost of
// sessions not surviving restarts. Call once at application startup.
func ConfigureJWTSecret(secret string, production bool) error {
	jwtSecretOnce.Do(func() {
		if secret == "" {
			if production {
				jwtSecretErr = errors.New("auth.jwt_secret is required in production; generate one with: openssl rand -hex 32")
				return
			}
			jwtSecret = generateRandomSecret()
			slog.Warn("auth.jwt_secret not set, using auto-generated secret; sessions will not persist across restarts")
			return
		}

		if len(secret) < 32 {
			slog.Warn("auth.jwt_secret is shorter than the recommended 32 characters")
		}
		jwtSecret = secret
	})

	return jwtSecretErr
}

func signingSecret() (string, error) {
	if jwtSecret == "" {
		return "", errors.New("jwt secret not configured")
	}
	return jwtSecret, nil
}

// GenerateAccessToken creates a short-lived access token for an
// authenticated user.
func GenerateAccessToken(userID, email, role string, ttl time.Duration) (string, error) {
	return generateToken(userID, email, role, TokenTypeAccess, ttl)
}

// GenerateRefreshToken creates a long-lived refresh token. Refresh tokens
// carry the same identity claims so the refresh endpoint can mint a new pair
// without a database lookup for the common case.
func GenerateRefreshToken(userID, email, role string, ttl time.Duration) (string, error) {
	return generateToken(userID, email, role, TokenTypeRefresh, ttl)
}

func generateToken(userID, email, role, tokenType string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	secret, err := signingSecret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "glimmr-api",
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and validates a JWT, returning its claims. It accepts
// both token types; callers that require a specific type check Claims.TokenType.
func ValidateToken(tokenString string) (*Claims, error) {
	secret, err := signingSecret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}
