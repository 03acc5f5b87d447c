package api

import (
	"context"
	"net/http"
	"strings"

	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
)

// Authenticator resolves a bearer token to a username.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// userIDKey is the context key for the authenticated user ID.
const userIDKey ctxKey = "userID"

// GetUserID returns the authenticated user ID from context.
// Returns 401 error if user is not authenticated.
func GetUserID(ctx context.Context) (string, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return "", domainerrors.Unauthorized("Authentication required")
	}
	return userID, nil
}

// getUserID returns the authenticated user ID, or "" for anonymous requests.
func getUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// setUserID stores the user ID in context.
func setUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// authMiddleware validates Bearer tokens and stores the user ID in context.
// Requests without a valid token continue anonymously; handlers that need a
// user call GetUserID.
func authMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := auth.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(setUserID(r.Context(), userID)))
		})
	}
}
