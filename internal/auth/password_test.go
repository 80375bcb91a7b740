package auth

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	t.Run("hashes a valid password", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery staple")
		if err != nil {
			t.Fatalf("HashPassword() error: %v", err)
		}
		if hash == "" {
			t.Error("HashPassword() returned empty hash")
		}
		if hash == "correct horse battery staple" {
			t.Error("HashPassword() returned the plaintext")
		}
	})

	t.Run("rejects short password", func(t *testing.T) {
		if _, err := HashPassword("short"); err == nil {
			t.Error("HashPassword() expected error for short password, got nil")
		}
	})

	t.Run("rejects password over bcrypt limit", func(t *testing.T) {
		if _, err := HashPassword(strings.Repeat("a", 73)); err == nil {
			t.Error("HashPassword() expected error for 73-byte password, got nil")
		}
	})
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}

	if !CheckPassword("correct horse battery staple", hash) {
		t.Error("CheckPassword() = false for matching password")
	}
	if CheckPassword("wrong password here", hash) {
		t.Error("CheckPassword() = true for wrong password")
	}
	if CheckPassword("correct horse battery staple", "not-a-hash") {
		t.Error("CheckPassword() = true for invalid stored hash")
	}
}
