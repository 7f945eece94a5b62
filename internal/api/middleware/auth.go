package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/google/uuid"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
)

// TokenValidator is satisfied by *service.AuthService.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*service.Principal, error)
}

func Auth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization header required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeUnauthorized(w, "Invalid authorization header")
				return
			}

			principal, err := validator.ValidateToken(r.Context(), parts[1])
			if err != nil {
				logger.Debug("token rejected", slog.String("error", err.Error()))
				writeUnauthorized(w, "Invalid token")
				return
			}

			SetUserID(r.Context(), principal.UserID)
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetPrincipal(ctx context.Context) (*service.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*service.Principal)
	return p, ok
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return p.UserID, true
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"auth/unauthorized","message":"` + message + `"}}`))
}
