package budget

import (
	"context"
	"time"
)

type toolTimeoutKey struct{}

// WithToolTimeout carries the per-call tool limit of a run to the dispatcher.
func WithToolTimeout(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}
	return context.WithValue(ctx, toolTimeoutKey{}, d)
}

// ToolTimeoutFrom reports the limit set by WithToolTimeout.
func ToolTimeoutFrom(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(toolTimeoutKey{}).(time.Duration)
	return d, ok && d > 0
}
