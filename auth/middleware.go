package auth

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
)

// Claims is the subset of token claims handlers care about.
type Claims struct {
	UserID     string
	Email      string
	EmployeeID string
	IsAdmin    bool
}

// FromContext reads the verified claims placed by jwtauth.Verifier.
func FromContext(ctx context.Context) (Claims, error) {
	token, claims, err := jwtauth.FromContext(ctx)
	if err != nil || token == nil {
		return Claims{}, ErrInvalidToken
	}
	if t, _ := claims["type"].(string); t != tokenTypeAccess {
		return Claims{}, ErrInvalidToken
	}
	c := Claims{}
	c.UserID, _ = claims["user_id"].(string)
	c.Email, _ = claims["email"].(string)
	c.EmployeeID, _ = claims["employee_id"].(string)
	c.IsAdmin, _ = claims["is_admin"].(bool)
	if c.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}

// Verifier finds the token in the Authorization header or the "jwt" cookie.
func (s *TokenService) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(s.tokenAuth)
}

// AuthRequired rejects requests without a valid access token. onErr writes
// the response so the caller keeps a single error body format.
func AuthRequired(onErr func(http.ResponseWriter, int, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := FromContext(r.Context()); err != nil {
				onErr(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func AdminOnly(onErr func(http.ResponseWriter, int, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := FromContext(r.Context())
			if err != nil {
				onErr(w, http.StatusUnauthorized, err)
				return
			}
			if !c.IsAdmin {
				onErr(w, http.StatusForbidden, ErrAdminRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
