package auth

import "context"

type contextKey string

const userKey contextKey = "auth_user"

// WithUser stores the authenticated user id on the context.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserFromContext returns the authenticated user id, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey).(string)
	return id, ok && id != ""
}
