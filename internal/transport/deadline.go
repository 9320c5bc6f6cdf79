package transport

import (
	"context"
	"time"
)

// Deadline returns the earlier of ctx's deadline and now+timeout. The zero
// time means no deadline.
func Deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}
