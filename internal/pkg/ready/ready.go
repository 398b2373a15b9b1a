// Package ready implements the bounded-retry dependency polling every
// service performs before entering steady state.
package ready

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// Default polling parameters: 30 attempts, 2s apart, matching the window
// the deployment gives the broker and database to come up.
const (
	DefaultAttempts = 30
	DefaultDelay    = 2 * time.Second
)

// Wait polls probe until it succeeds or attempts are exhausted. Each
// failed attempt logs a warning; exhaustion returns the last error so
// the caller decides whether the dependency is fatal (bus, for the
// consumer role) or merely degrades the service (store).
func Wait(ctx context.Context, name string, attempts int, delay time.Duration, probe func(context.Context) error) error {
	err := retry.Call(retry.CallArgs{
		Func:     func() error { return probe(ctx) },
		Attempts: attempts,
		Delay:    delay,
		Clock:    clock.WallClock,
		Stop:     ctx.Done(),
		NotifyFunc: func(lastError error, attempt int) {
			slog.WarnContext(ctx, "dependency not ready",
				"dependency", name, "attempt", attempt, "max_attempts", attempts, "error", lastError)
		},
	})
	if err != nil {
		return fmt.Errorf("ready: %s not reachable after %d attempts: %w", name, attempts, retry.LastError(err))
	}
	slog.InfoContext(ctx, "dependency ready", "dependency", name)
	return nil
}
