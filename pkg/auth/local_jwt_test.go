package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestAuth(t *testing.T) *LocalJWTAuth {
	t.Helper()
	a, err := NewLocalJWTAuth("test-secret-key", 0, 0)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth: %v", err)
	}
	return a
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer token", header: "Bearer abc123", want: "abc123"},
		{name: "lowercase bearer", header: "bearer abc123", want: "abc123"},
		{name: "empty header", header: "", wantErr: true},
		{name: "missing scheme", header: "abc123", wantErr: true},
		{name: "wrong scheme", header: "Basic abc123", wantErr: true},
		{name: "bearer without token", header: "Bearer ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractToken(%q) expected error, got %q", tt.header, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractToken(%q): %v", tt.header, err)
			}
			if got != tt.want {
				t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestGenerateAndVerifyTokens(t *testing.T) {
	a := newTestAuth(t)

	access, refresh, err := a.GenerateTokens("user-1", "dev@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("expected non-empty tokens")
	}
	if access == refresh {
		t.Fatal("access and refresh tokens should differ")
	}

	user, err := a.VerifyAccessToken(access)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if user.ID != "user-1" || user.Email != "dev@example.com" || user.Role != "admin" {
		t.Errorf("unexpected user from token: %+v", user)
	}

	claims, err := a.VerifyRefreshToken(refresh)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("refresh claims user = %q, want user-1", claims.UserID)
	}
	if claims.TokenID == "" {
		t.Error("refresh token should carry a token ID")
	}
}

func TestVerifyAccessTokenRejectsWrongKey(t *testing.T) {
	a := newTestAuth(t)
	other, err := NewLocalJWTAuth("a-different-secret", 0, 0)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth: %v", err)
	}

	access, _, err := a.GenerateTokens("user-1", "dev@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	if _, err := other.VerifyAccessToken(access); err == nil {
		t.Error("expected verification to fail with a different signing key")
	}
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	a, err := NewLocalJWTAuth("test-secret-key", -time.Minute, 0)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth: %v", err)
	}

	access, _, err := a.GenerateTokens("user-1", "dev@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateTokens: %v", err)
	}

	if _, err := a.VerifyAccessToken(access); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	a := newTestAuth(t)

	hash, err := a.HashPassword("Correct#Horse9")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$") {
		t.Fatalf("hash %q missing argon2id prefix", hash)
	}

	ok, err := a.VerifyPassword(hash, "Correct#Horse9")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Error("correct password should verify")
	}

	ok, err = a.VerifyPassword(hash, "wrong-password")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Error("wrong password should not verify")
	}

	// Same password twice must produce different salts
	hash2, err := a.HashPassword("Correct#Horse9")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == hash2 {
		t.Error("two hashes of the same password should differ")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	a := newTestAuth(t)

	for _, hash := range []string{"", "plaintext", "argon2id$onlysalt", "bcrypt$x$y"} {
		if _, err := a.VerifyPassword(hash, "whatever"); err == nil {
			t.Errorf("VerifyPassword(%q) expected error", hash)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid", password: "Valid#Pass1", wantErr: false},
		{name: "too short", password: "V#p1", wantErr: true},
		{name: "no uppercase", password: "valid#pass1", wantErr: true},
		{name: "no lowercase", password: "VALID#PASS1", wantErr: true},
		{name: "no digit", password: "Valid#Passx", wantErr: true},
		{name: "no special", password: "ValidPass11", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}
