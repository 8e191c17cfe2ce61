package tools

import "context"

// sessionIDKey is the ambient session id context key. The transport sets
// it on connection; tools resolve it from there, never from model input.
type sessionIDKey struct{}

// WithSessionID returns a context carrying the ambient session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFrom extracts the ambient session id, or "" when unset.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
