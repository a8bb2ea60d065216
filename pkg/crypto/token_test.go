package crypto

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashToken(t *testing.T) {
	hash, err := HashToken("status-token", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("hash %q is not bcrypt", hash)
	}
	if err := VerifyToken("status-token", hash); err != nil {
		t.Errorf("VerifyToken() error = %v", err)
	}

	// cost за пределами диапазона поджимается
	if _, err := HashToken("x", 1); err != nil {
		t.Errorf("low cost: %v", err)
	}
}

func TestHashTokenErrors(t *testing.T) {
	if _, err := HashToken("", bcrypt.MinCost); err != ErrEmptyToken {
		t.Errorf("empty: %v", err)
	}
	if _, err := HashToken(strings.Repeat("a", MaxTokenLength+1), bcrypt.MinCost); err != ErrTokenTooLong {
		t.Errorf("too long: %v", err)
	}
}

func TestVerifyToken(t *testing.T) {
	hash, _ := HashToken("right", bcrypt.MinCost)

	tests := []struct {
		name  string
		token string
		hash  string
		want  error
	}{
		{"match", "right", hash, nil},
		{"mismatch", "wrong", hash, ErrTokenMismatch},
		{"empty token", "", hash, ErrEmptyToken},
		{"empty hash", "right", "", ErrInvalidHash},
		{"garbage hash", "right", "not-a-hash", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyToken(tt.token, tt.hash); err != tt.want {
				t.Errorf("VerifyToken() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTokenVerifier(t *testing.T) {
	t.Run("disabled accepts everything", func(t *testing.T) {
		v := NewTokenVerifier("")
		if v.Enabled() {
			t.Error("Enabled() = true")
		}
		if !v.Verify("") || !v.Verify("anything") {
			t.Error("disabled verifier must accept")
		}
	})

	t.Run("checks and caches", func(t *testing.T) {
		hash, _ := HashToken("right", bcrypt.MinCost)
		v := NewTokenVerifier(hash)

		if v.Verify("") {
			t.Error("empty token accepted")
		}
		if v.Verify("wrong") {
			t.Error("wrong token accepted")
		}
		if v.accepted != nil {
			t.Error("rejected token must not be cached")
		}
		if !v.Verify("right") {
			t.Error("right token rejected")
		}
		if v.accepted == nil {
			t.Error("accepted token not cached")
		}
		if !v.Verify("right") {
			t.Error("cached token rejected")
		}
		if v.Verify("wrong") {
			t.Error("wrong token accepted after cache")
		}
	})
}
