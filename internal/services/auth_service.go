package services

import (
	"errors"

	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
)

// AuthService issues the bearer tokens the sync endpoints require.
type AuthService struct {
	cfg *config.Config
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// IssueSyncToken verifies the admin credential and returns a sync token.
func (s *AuthService) IssueSyncToken(username, password string) (string, error) {
	if s.cfg.AdminPasswordHash == "" {
		return "", errors.New("admin credential not configured")
	}
	if username != s.cfg.AdminUsername {
		return "", errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}
	return jwt.GenerateToken(username, jwt.SyncToken, s.cfg.JWTSecret, s.cfg.JWTTokenDuration)
}

// VoterFromToken resolves the voter identity from any valid token. Voting
// does not care which token type the client holds, only who it names.
func (s *AuthService) VoterFromToken(token string) (string, error) {
	claims, err := jwt.ValidateToken(token, s.cfg.JWTSecret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ValidateSyncToken checks a bearer token and returns its subject.
func (s *AuthService) ValidateSyncToken(token string) (string, error) {
	claims, err := jwt.ValidateToken(token, s.cfg.JWTSecret)
	if err != nil {
		return "", err
	}
	if claims.TokenType != jwt.SyncToken {
		return "", errors.New("wrong token type")
	}
	return claims.Subject, nil
}
