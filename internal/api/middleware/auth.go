package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	apiContext "callcrm/internal/api/context"
	"callcrm/internal/pkg/errors"
	"callcrm/internal/platform/auth"
	"callcrm/internal/platform/config"
)

// AuthMiddleware accepts either an X-API-Key header checked against the
// configured bcrypt hashes, or an Authorization: Bearer JWT.
type AuthMiddleware struct {
	tokenSvc     *auth.TokenService
	apiKeyHashes []string
}

func NewAuthMiddleware(tokenSvc *auth.TokenService, cfg config.AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{
		tokenSvc:     tokenSvc,
		apiKeyHashes: cfg.APIKeyHashes,
	}
}

func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			if m.verifyAPIKey(apiKey) {
				next(w, r)
				return
			}
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid API key", nil)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing credentials", nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenSvc.ValidateToken(parts[1])
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		next(w, r.WithContext(ctx))
	}
}

func (m *AuthMiddleware) verifyAPIKey(apiKey string) bool {
	for _, hash := range m.apiKeyHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) == nil {
			return true
		}
	}
	return false
}
