package ledger

import "context"

type correlationKey struct{}

// WithCorrelationID tags the context with the request correlation id so
// every event written during the request carries it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the tagged id, or "" when the context has none
// (the store generates one per event in that case).
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}
