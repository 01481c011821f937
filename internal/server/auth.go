package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Auth selects how requests are mapped to an owner. A JWT secret takes
// precedence over basic auth; with neither set every request acts as DefaultOwner.
type Auth struct {
	Username     string
	Password     string
	JWTSecret    string
	DefaultOwner string
}

type ownerKey struct{}

// OwnerFrom returns the owner resolved by requireAuth
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// identify resolves the owner of a request
func (s *Server) identify(r *http.Request) (string, error) {
	a := s.config.Auth
	switch {
	case a.JWTSecret != "":
		return ownerFromToken(r, a.JWTSecret)
	case a.Username != "" || a.Password != "":
		user, pass, ok := r.BasicAuth()
		if !ok || user != a.Username || pass != a.Password {
			return "", errors.New("invalid credentials")
		}
		return user, nil
	default:
		return a.DefaultOwner, nil
	}
}

func ownerFromToken(r *http.Request, secret string) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("missing bearer token")
	}

	token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.identify(r)
		if err != nil || owner == "" {
			if s.config.Auth.JWTSecret == "" {
				w.Header().Set("WWW-Authenticate", `Basic realm="Ledger Import"`)
			} else {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	}
}
