package auth

import (
	"errors"
	"testing"
	"time"
)

func TestParseToken(t *testing.T) {
	const secret = "test-secret"

	valid, err := GenerateToken(secret, "user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expired, err := GenerateToken(secret, "user-1", "a@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	otherSecret, err := GenerateToken("other", "user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	noSubject, err := GenerateToken(secret, "", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid", token: valid},
		{name: "expired", token: expired, wantErr: ErrExpiredToken},
		{name: "wrong secret", token: otherSecret, wantErr: ErrInvalidToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "missing subject", token: noSubject, wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(secret, tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseToken() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToken() unexpected error: %v", err)
			}
			if claims.UserID() != "user-1" {
				t.Errorf("UserID() = %q, want user-1", claims.UserID())
			}
			if claims.Email != "a@example.com" {
				t.Errorf("Email = %q", claims.Email)
			}
		})
	}
}
