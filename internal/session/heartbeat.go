package session

import (
	"context"
	"time"
)

// runHeartbeat calls ping every interval until ctx ends or ping fails.
// It never waits for a pong; the read loop owns liveness.
func runHeartbeat(ctx context.Context, interval time.Duration, ping func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ping(ctx); err != nil {
				return err
			}
		}
	}
}
