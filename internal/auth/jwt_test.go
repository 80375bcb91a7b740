package auth

import (
	"sync"
	"testing"
	"time"
)

// resetJWTSecret resets the package-level sync.Once so tests can install a
// fresh secret. Only safe to call from test code.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func configureTestSecret(t *testing.T) {
	t.Helper()
	resetJWTSecret()
	if err := ConfigureJWTSecret("test-jwt-secret-that-is-32-chars!", false); err != nil {
		t.Fatalf("ConfigureJWTSecret() error: %v", err)
	}
}

func TestConfigureJWTSecret(t *testing.T) {
	t.Run("accepts configured secret", func(t *testing.T) {
		resetJWTSecret()
		if err := ConfigureJWTSecret("exactly-32-char-secret-for-test!!", true); err != nil {
			t.Errorf("ConfigureJWTSecret() unexpected error: %v", err)
		}
	})

	t.Run("production requires a secret", func(t *testing.T) {
		resetJWTSecret()
		if err := ConfigureJWTSecret("", true); err == nil {
			t.Error("ConfigureJWTSecret() expected error in production without secret, got nil")
		}
	})

	t.Run("non-production generates a random secret", func(t *testing.T) {
		resetJWTSecret()
		if err := ConfigureJWTSecret("", false); err != nil {
			t.Errorf("ConfigureJWTSecret() unexpected error: %v", err)
		}
		if jwtSecret == "" {
			t.Error("expected auto-generated secret, got empty string")
		}
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	configureTestSecret(t)

	t.Run("access token round trip", func(t *testing.T) {
		token, err := GenerateAccessToken("user-1", "admin@glimmr.health", "admin", time.Hour)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error: %v", err)
		}

		claims, err := ValidateToken(token)
		if err != nil {
			t.Fatalf("ValidateToken() error: %v", err)
		}
		if claims.UserID != "user-1" {
			t.Errorf("UserID = %q, want %q", claims.UserID, "user-1")
		}
		if claims.Email != "admin@glimmr.health" {
			t.Errorf("Email = %q, want %q", claims.Email, "admin@glimmr.health")
		}
		if claims.Role != "admin" {
			t.Errorf("Role = %q, want %q", claims.Role, "admin")
		}
		if claims.TokenType != TokenTypeAccess {
			t.Errorf("TokenType = %q, want %q", claims.TokenType, TokenTypeAccess)
		}
		if claims.Issuer != "glimmr-api" {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, "glimmr-api")
		}
	})

	t.Run("refresh token carries refresh type", func(t *testing.T) {
		token, err := GenerateRefreshToken("user-2", "viewer@glimmr.health", "viewer", 24*time.Hour)
		if err != nil {
			t.Fatalf("GenerateRefreshToken() error: %v", err)
		}

		claims, err := ValidateToken(token)
		if err != nil {
			t.Fatalf("ValidateToken() error: %v", err)
		}
		if claims.TokenType != TokenTypeRefresh {
			t.Errorf("TokenType = %q, want %q", claims.TokenType, TokenTypeRefresh)
		}
	})

	t.Run("zero ttl defaults instead of issuing an expired token", func(t *testing.T) {
		token, err := GenerateAccessToken("user-3", "a@b.c", "viewer", 0)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error: %v", err)
		}
		claims, err := ValidateToken(token)
		if err != nil {
			t.Fatalf("ValidateToken() error: %v", err)
		}
		if !claims.ExpiresAt.After(time.Now()) {
			t.Error("token with zero ttl should still be valid")
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := GenerateAccessToken("user-4", "a@b.c", "viewer", -time.Minute)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error: %v", err)
		}
		if _, err := ValidateToken(token); err == nil {
			t.Error("ValidateToken() expected error for expired token, got nil")
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		if _, err := ValidateToken("not.a.jwt"); err == nil {
			t.Error("ValidateToken() expected error for malformed token, got nil")
		}
	})

	t.Run("token signed with different secret rejected", func(t *testing.T) {
		token, err := GenerateAccessToken("user-5", "a@b.c", "viewer", time.Hour)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error: %v", err)
		}

		resetJWTSecret()
		if err := ConfigureJWTSecret("a-completely-different-32-char-s!", false); err != nil {
			t.Fatalf("ConfigureJWTSecret() error: %v", err)
		}
		if _, err := ValidateToken(token); err == nil {
			t.Error("ValidateToken() expected signature error, got nil")
		}

		configureTestSecret(t)
	})
}
