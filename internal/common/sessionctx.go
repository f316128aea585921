package common

import (
	"context"

	"github.com/bobmcallan/gatehouse/internal/models"
)

// SessionContext holds the authenticated session and user for a request,
// injected by the session auth middleware after validating the bearer token.
type SessionContext struct {
	Session *models.Session
	User    *models.User
}

type contextKey int

const (
	sessionContextKey contextKey = iota
	correlationIDKey
)

// WithSessionContext stores a SessionContext in the request context.
func WithSessionContext(ctx context.Context, sc *SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey, sc)
}

// SessionFromContext retrieves the SessionContext from context, or nil if absent.
func SessionFromContext(ctx context.Context) *SessionContext {
	sc, _ := ctx.Value(sessionContextKey).(*SessionContext)
	return sc
}

// IsAdmin reports whether the context carries an authenticated admin user.
func IsAdmin(ctx context.Context) bool {
	sc := SessionFromContext(ctx)
	return sc != nil && sc.User != nil && sc.User.Role == models.RoleAdmin
}

// WithCorrelationID stores a request correlation ID in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext retrieves the correlation ID, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
