package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

// 1. Define Context Keys (Exported so other packages can read them)
type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// 2. Define what we need from the User Service
// This interface decouples 'middleware' from 'user'
type TokenValidator interface {
	ValidateToken(tokenString string) (int, string, error)
}

// 3. The Middleware Structure
type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// 4. The actual Handler
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		// Check Authorization Header
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			scheme, token, found := strings.Cut(authHeader, " ")
			if found && strings.EqualFold(scheme, "Bearer") {
				tokenString = strings.TrimSpace(token)
			}
		}

		// Fallback: Check Query Param (browsers can't set headers on a WebSocket handshake)
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, username, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, username)))
	})
}

// WithUser injects an authenticated identity into ctx.
func WithUser(ctx context.Context, userID int, username string) context.Context {
	ctx = context.WithValue(ctx, UserKey, userID)
	return context.WithValue(ctx, UsernameKey, username)
}

// UserFromContext returns the identity set by Handle.
func UserFromContext(ctx context.Context) (int, string, bool) {
	userID, ok := ctx.Value(UserKey).(int)
	username, ok2 := ctx.Value(UsernameKey).(string)
	return userID, username, ok && ok2
}
