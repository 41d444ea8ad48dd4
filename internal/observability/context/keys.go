package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "observability_request_id"
	callerKey    contextKey = "observability_caller"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithCaller records the authenticated principal driving the request.
func WithCaller(ctx context.Context, caller string) context.Context {
	if ctx == nil || caller == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey, caller)
}

func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(callerKey).(string)
	return value
}
