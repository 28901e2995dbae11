package studentserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const usernameKey contextKey = "username"

// accessClaims stamps each token with the generation it was issued under.
// JWT timestamps only carry second precision, so invalidation cannot rely on
// issued-at comparisons alone.
type accessClaims struct {
	jwt.RegisteredClaims
	Generation int64 `json:"gen"`
}

func (s *Server) issueAccessToken(username string) (string, error) {
	now := s.cfg.Clock()

	s.mu.Lock()
	generation := s.minGeneration
	s.mu.Unlock()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
		Generation: generation,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
}

func (s *Server) verifyAccessToken(raw string) (string, bool) {
	token, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.cfg.Clock))
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || claims.Subject == "" {
		return "", false
	}

	s.mu.Lock()
	minGeneration := s.minGeneration
	s.mu.Unlock()
	if claims.Generation < minGeneration {
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing access token"})
			return
		}

		username, ok := s.verifyAccessToken(strings.TrimSpace(raw))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or expired access token"})
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), usernameKey, username)))
	}
}

func requestUsername(r *http.Request) string {
	username, _ := r.Context().Value(usernameKey).(string)
	return username
}
