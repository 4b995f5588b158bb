package auth

import (
	"testing"
	"time"
)

func testManager() *Manager {
	return &Manager{
		Secret:     []byte("test-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Issuer:     "citas-backend",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager()
	token, err := m.NewAccessToken("admin")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Role != "admin" {
		t.Errorf("role = %q, want admin", claims.Role)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("token type = %q, want %q", claims.TokenType, TokenTypeAccess)
	}
}

func TestRefreshTokenCarriesRefreshType(t *testing.T) {
	m := testManager()
	token, err := m.NewRefreshToken("admin")
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.TokenType != TokenTypeRefresh {
		t.Errorf("token type = %q, want %q", claims.TokenType, TokenTypeRefresh)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := testManager().NewAccessToken("admin")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	other := testManager()
	other.Secret = []byte("another-secret")
	if _, err := other.Parse(token); err == nil {
		t.Fatal("expected parse error for wrong secret")
	}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	hash, err := HashPassword("long-enough-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := ComparePassword(hash, "long-enough-password"); err != nil {
		t.Errorf("ComparePassword: %v", err)
	}
	if err := ComparePassword(hash, "wrong-password"); err == nil {
		t.Error("expected mismatch error")
	}
}
