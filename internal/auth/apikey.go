package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of an API key in bytes.
	APIKeyLength = 32

	// APIKeyDisplayLength is the number of leading characters safe to show
	// in listings after the full key has been handed out.
	APIKeyDisplayLength = 10

	// APIKeyBcryptCost is the cost factor for API key hashing. Keys are
	// high-entropy so a lower cost than passwords would be defensible, but
	// they are verified rarely enough that the shared cost is fine.
	APIKeyBcryptCost = 12
)

// GenerateAPIKey creates a new random API key with the given prefix
// (e.g. "glmr_"). It returns the full key to show the user exactly once,
// the bcrypt hash to store, and a short display prefix for listings.
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := prefix + base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), APIKeyBcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	display := fullKey
	if len(display) > APIKeyDisplayLength {
		display = display[:APIKeyDisplayLength]
	}

	return fullKey, string(hashBytes), display, nil
}

// ValidateAPIKey reports whether a provided key matches the stored hash.
func ValidateAPIKey(providedKey, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// ExtractBearerToken extracts the credential from an Authorization header of
// the form "Bearer <token>". Both JWTs and API keys arrive this way.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("authorization header has no credential")
	}

	return token, nil
}
