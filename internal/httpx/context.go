package httpx

import (
	"context"
	"net/http"
)

type contextKey string

const (
	userIDKey    contextKey = "userID"
	requestIDKey contextKey = "requestID"
	accessKey    contextKey = "access"
)

// accessUser is filled in by inner middleware so the access log, which runs
// outside them, can report who made the request.
type accessUser struct {
	userID string
	role   string
}

// UserIDFrom retrieves the user ID from the request context.
func UserIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// RequestIDFrom retrieves the request ID set by RequestIDMiddleware.
func RequestIDFrom(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithUser returns a new context with the user ID. The role is only
// reported to the access log.
func ContextWithUser(ctx context.Context, userID, role string) context.Context {
	if u, ok := ctx.Value(accessKey).(*accessUser); ok {
		u.userID, u.role = userID, role
	}
	return context.WithValue(ctx, userIDKey, userID)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func contextWithAccessUser(ctx context.Context) (context.Context, *accessUser) {
	u := &accessUser{}
	return context.WithValue(ctx, accessKey, u), u
}
