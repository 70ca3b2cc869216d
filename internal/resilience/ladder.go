package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultThrottleLadder is the fixed backoff ladder shared by both
// scoring passes: one initial attempt plus one retry per rung.
var DefaultThrottleLadder = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

// Ladder executes fn with a fixed backoff ladder. The first attempt is
// immediate; each subsequent attempt waits the next rung. Only errors
// matching shouldRetry climb the ladder; anything else returns at once.
// Exhausting the ladder returns the last error as a hard failure.
// The sleep blocks only the caller, not sibling goroutines.
func Ladder(ctx context.Context, rungs []time.Duration, shouldRetry func(error) bool, fn func(ctx context.Context) error) error {
	if shouldRetry == nil {
		shouldRetry = IsThrottle
	}

	var lastErr error
	for attempt := 0; attempt <= len(rungs); attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= len(rungs) {
			break
		}

		zap.L().Warn("throttled, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", rungs[attempt]),
			zap.Error(lastErr),
		)
		timer := time.NewTimer(rungs[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// LadderVal is Ladder for functions returning a value.
func LadderVal[T any](ctx context.Context, rungs []time.Duration, shouldRetry func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Ladder(ctx, rungs, shouldRetry, func(ctx context.Context) error {
		var inner error
		out, inner = fn(ctx)
		return inner
	})
	return out, err
}
