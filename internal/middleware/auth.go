package middleware

import (
	"context"
	"net/http"

	"grouporder-services/internal/auth"
	"grouporder-services/pkg/response"
)

type contextKey string

const authContextKey contextKey = "authContext"

type AuthContext struct {
	UserID string
	Name   *string
}

func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	value := ctx.Value(authContextKey)
	if value == nil {
		return nil, false
	}
	ac, ok := value.(*AuthContext)
	return ac, ok && ac != nil
}

// OptionalAuth attaches the bearer token's user when the token is valid. Diners may
// browse anonymously, so a missing or bad token is not an error here.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ParseBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := auth.VerifyAccessToken(token, jwtSecret)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithAuthContext(r.Context(), &AuthContext{UserID: claims.UserID, Name: claims.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests that OptionalAuth did not identify.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAuthContext(r.Context()); !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
