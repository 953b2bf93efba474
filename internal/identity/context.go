// Package identity carries the authenticated user id through request contexts.
package identity

import "context"

type ctxKey string

const userKey ctxKey = "praxis.user_id"

// WithUserID stores the verified user id in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext extracts the user id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}
