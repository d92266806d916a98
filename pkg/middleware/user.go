package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserIDHeader = "X-User-ID"

const userContextKey contextKey = "user_id"

// UserID copies the caller-supplied user id into the request context. The id
// is trusted input; requests without one are rejected.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userContextKey).(string)
	return userID, ok && userID != ""
}

// WithUser is used by handlers tests to skip the header middleware.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}
