package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// Autenticação do painel administrativo
// ============================================================
//
// Um único operador administra o dashboard: a credencial é uma senha cujo
// hash bcrypt vem da configuração. Login bem-sucedido emite um JWT HS256
// de curta duração; o middleware valida o token nas rotas /v1 de leitura.

// AuthService handles admin login and token validation.
type AuthService struct {
	passwordHash string
	jwtSecret    []byte
	accessTTL    time.Duration
	logger       *zap.Logger
}

// NewAuthService creates the admin auth service.
func NewAuthService(passwordHash, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		passwordHash: passwordHash,
		jwtSecret:    []byte(jwtSecret),
		accessTTL:    accessTTL,
		logger:       logger,
	}
}

// AdminClaims represents the claims in admin access tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Login valida a senha do operador e emite o token de acesso.
func (s *AuthService) Login(req *domain.AdminLoginRequest) (*domain.AdminLoginResponse, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login administrativo recusado")
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}

	now := time.Now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("login administrativo concluído")
	return &domain.AdminLoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.accessTTL.Seconds()),
	}, nil
}

// ValidateAccessToken verifica assinatura e expiração; usado pelo middleware.
func (s *AuthService) ValidateAccessToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || claims.Role != "admin" {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}
	return claims, nil
}

// HashPassword gera o hash bcrypt de uma senha (ferramenta de provisão).
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
