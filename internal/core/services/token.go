package services

import (
	"fmt"
	"strings"
	"time"

	"chatsync/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is what the client needs from its own bearer token.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp
}

// TokenService reads session tokens without verifying the signature.
type TokenService struct {
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenService() *TokenService {
	return &TokenService{
		parser: jwt.NewParser(),
		now:    time.Now,
	}
}

func (s *TokenService) Inspect(tokenStr string) (SessionClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	if tokenStr == "" {
		return SessionClaims{}, fmt.Errorf("%w: empty", domain.ErrInvalidToken)
	}
	claims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(tokenStr, claims); err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return SessionClaims{}, fmt.Errorf("%w: subject not found in token", domain.ErrInvalidToken)
	}
	out := SessionClaims{Subject: sub}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
		if !s.now().Before(exp.Time) {
			return out, fmt.Errorf("%w: expired at %s", domain.ErrTokenExpired, exp.Time.Format(time.RFC3339))
		}
	}
	return out, nil
}
