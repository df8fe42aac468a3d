package auth

import (
	"delta-trading-bot/config"
)

// Service authenticates the single operator account configured for the
// bot and issues tokens for the HTTP API.
type Service struct {
	jwtManager *JWTManager
	cfg        config.AuthConfig
}

// NewService creates a new auth service
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		jwtManager: NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration),
		cfg:        cfg,
	}
}

// JWTManager exposes the underlying token manager for middleware wiring
func (s *Service) JWTManager() *JWTManager {
	return s.jwtManager
}

// Login validates the operator credentials and returns a token pair
func (s *Service) Login(username, password string) (*TokenPair, error) {
	if username != s.cfg.AdminUser || s.cfg.AdminPasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if !VerifyPassword(password, s.cfg.AdminPasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.jwtManager.GenerateTokenPair(UserClaims{
		UserID:   username,
		Username: username,
		IsAdmin:  true,
	})
}
