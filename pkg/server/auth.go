package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/peakguard/peakguard/pkg/log"
)

// authenticateToken verifies an ID token and returns its email.
func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	if s.authVerifier == nil {
		return "", errors.New("no audience configured")
	}
	idToken, err := s.authVerifier(ctx, token)
	if err != nil {
		return "", fmt.Errorf("verifier failed: %w", err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("invalid claims: %w", err)
	}
	if !claims.EmailVerified {
		return "", fmt.Errorf("email %s is not verified", claims.Email)
	}
	return claims.Email, nil
}

// authMiddleware only lets through requests carrying a Google ID token for
// authEmail, the way Cloud Scheduler calls an endpoint.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.bypassAuth {
			next.ServeHTTP(w, r)
			return
		}
		if s.authVerifier == nil || s.authEmail == "" {
			log.Ctx(ctx).WarnContext(ctx, "api called but auth is not configured")
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		email, err := s.authenticateToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(email), []byte(s.authEmail)) != 1 {
			log.Ctx(ctx).WarnContext(ctx, "token email mismatch", slog.String("got", email), slog.String("want", s.authEmail))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
