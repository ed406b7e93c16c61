package logging

import (
	"context"
)

// Log field names of values carried in the request context.
const (
	RequestIDKey   = "request_id"
	PrincipalKey   = "principal"
	TraceIDKey     = "trace_id"
	ServiceNameKey = "service_name"
)

type ctxKey string

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey(RequestIDKey), requestID)
}

func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, ctxKey(PrincipalKey), principal)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// GetPrincipal returns the authenticated principal the request runs as, or
// the empty string for anonymous requests.
func GetPrincipal(ctx context.Context) string {
	return getString(ctx, PrincipalKey)
}

func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

func getString(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, RequestIDKey, requestID)
	}

	if principal := GetPrincipal(ctx); principal != "" {
		fields = append(fields, PrincipalKey, principal)
	}

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, TraceIDKey, traceID)
	}

	return fields
}
