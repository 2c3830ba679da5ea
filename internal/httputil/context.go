package httputil

import (
	"context"
	"net/http"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

// userIDKey carries the authenticated user id from the auth middleware to
// the handlers.
const userIDKey contextKey = "driftnote.userID"

// WithUserID returns a request whose context carries the user id.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

// GetUserID returns the user id from the request context, or "" when the
// request never passed the auth middleware.
func GetUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
