package ctxkeys

import "context"

// contextKey is the type of request-scoped keys.
type contextKey string

const (
	requestIDKey      contextKey = "request_id"
	traceIDKey        contextKey = "trace_id"
	principalKey      contextKey = "principal"
	conversationIDKey contextKey = "conversation_id"
)

// WithRequestID stores the id assigned to an inbound request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id, if set.
func RequestID(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithTraceID stores the trace id of the active span.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id, if set.
func TraceID(ctx context.Context) (string, bool) {
	return stringValue(ctx, traceIDKey)
}

// WithPrincipal stores the authenticated subject of the request.
func WithPrincipal(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, principalKey, subject)
}

// Principal returns the authenticated subject, if any.
func Principal(ctx context.Context) (string, bool) {
	return stringValue(ctx, principalKey)
}

// WithConversationID stores the conversation being dispatched.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationID returns the conversation id, if set.
func ConversationID(ctx context.Context) (string, bool) {
	return stringValue(ctx, conversationIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
