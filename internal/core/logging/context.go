package logging

import "context"

type contextKey string

const (
	userIDKey contextKey = "user_id"
	connIDKey contextKey = "conn_id"
)

// WithUserID adds the authenticated user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithConnID adds a push connection ID to the context.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// GetUserID retrieves the user ID from the context.
// Returns empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// GetConnID retrieves the connection ID from the context.
// Returns empty string if not present.
func GetConnID(ctx context.Context) string {
	if id, ok := ctx.Value(connIDKey).(string); ok {
		return id
	}
	return ""
}
