package service

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"

	"go.uber.org/zap"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	hash, err := HashPassword("segredo123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return NewAuthService(hash, "test-jwt-secret", time.Hour, zap.NewNop())
}

func TestLoginIssuesValidToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(&domain.AdminLoginRequest{Password: "segredo123"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 3600 {
		t.Errorf("resp = %+v", resp)
	}

	claims, err := auth.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q, want admin", claims.Role)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := newTestAuth(t)

	_, err := auth.Login(&domain.AdminLoginRequest{Password: "errada"})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.ValidateAccessToken("not-a-token"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestValidateRejectsTokenFromOtherSecret(t *testing.T) {
	auth := newTestAuth(t)
	other := NewAuthService(auth.passwordHash, "another-secret", time.Hour, zap.NewNop())

	resp, err := other.Login(&domain.AdminLoginRequest{Password: "segredo123"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := auth.ValidateAccessToken(resp.AccessToken); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}
