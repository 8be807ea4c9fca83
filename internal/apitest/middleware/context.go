package middleware

import (
	"context"

	"github.com/nkiryanov/authaudit/internal/models"
)

type ctxKey string

const (
	userKey      ctxKey = "user"
	requestIDKey ctxKey = "request_id"
	traceKey     ctxKey = "audit_trace"
)

// WithUser creates a new context with the authenticated user
func WithUser(ctx context.Context, u models.User) context.Context {
	if t, ok := ctx.Value(traceKey).(*trace); ok {
		t.setUser(u)
	}
	return context.WithValue(ctx, userKey, u)
}

// Extract the user from the context
func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
