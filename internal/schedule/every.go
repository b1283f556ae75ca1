package schedule

import (
	"context"
	"time"
)

// Every runs fn once immediately and then on every tick of interval until
// ctx is cancelled. Ticks that arrive while fn is running are not queued.
func Every(ctx context.Context, clock Clock, interval time.Duration, fn func(context.Context)) {
	if clock == nil {
		clock = System{}
	}
	if ctx.Err() != nil {
		return
	}
	fn(ctx)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}
