package userctx

import "context"

// Context key type
type contextKey string

const callerKey contextKey = "caller"
const RequestIDKey contextKey = "request_id"

// SetCaller adds the caller identity used for rate limiting and auditing to the context
func SetCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCaller retrieves the caller identity from the context
func GetCaller(ctx context.Context) string {
	caller, ok := ctx.Value(callerKey).(string)
	if !ok || caller == "" {
		return "anonymous"
	}
	return caller
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
