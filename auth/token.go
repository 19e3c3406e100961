// Package auth issues and checks the access tokens used by the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/tempreco/ponto/directory"
)

const tokenTypeAccess = "access"

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrAdminRequired  = errors.New("admin privilege required")
	ErrNoEmployeeLink = errors.New("user is not linked to an employee")
)

// TokenService signs HS256 access tokens.
type TokenService struct {
	tokenAuth *jwtauth.JWTAuth
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		tokenAuth: jwtauth.New("HS256", []byte(secret), nil, jwt.WithAcceptableSkew(30*time.Second)),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *TokenService) JWTAuth() *jwtauth.JWTAuth {
	return s.tokenAuth
}

// Issue returns a signed access token for u and its expiry.
func (s *TokenService) Issue(u directory.User) (string, time.Time, error) {
	expiresAt := s.now().Add(s.ttl)
	claims := map[string]interface{}{
		"user_id":     u.ID,
		"email":       u.Email,
		"employee_id": u.EmployeeID,
		"is_admin":    u.IsAdmin(),
		"type":        tokenTypeAccess,
	}
	jwtauth.SetExpiry(claims, expiresAt)
	jwtauth.SetIssuedAt(claims, s.now())

	_, tokenString, err := s.tokenAuth.Encode(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}
