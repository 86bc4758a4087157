package observability

import "context"

type attemptKey struct{}

// WithAttemptID tags ctx with the id of the current upload attempt
func WithAttemptID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, attemptKey{}, id)
}

// AttemptID returns the attempt id stored in ctx, or ""
func AttemptID(ctx context.Context) string {
	id, _ := ctx.Value(attemptKey{}).(string)
	return id
}
