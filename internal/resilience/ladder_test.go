package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLadder_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Ladder(context.Background(), DefaultThrottleLadder, nil, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLadder_NonThrottleReturnsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Ladder(context.Background(), DefaultThrottleLadder, nil, func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestLadder_ClimbsAllRungsThenFails(t *testing.T) {
	rungs := []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	calls := 0
	throttled := NewThrottleError(errors.New("rate limited"))
	err := Ladder(context.Background(), rungs, nil, func(ctx context.Context) error {
		calls++
		return throttled
	})
	assert.Error(t, err)
	assert.True(t, IsThrottle(err))
	// One initial attempt plus one retry per rung.
	assert.Equal(t, len(rungs)+1, calls)
}

func TestLadder_RecoversMidLadder(t *testing.T) {
	rungs := []time.Duration{time.Millisecond, time.Millisecond}
	calls := 0
	err := Ladder(context.Background(), rungs, nil, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return NewThrottleError(errors.New("rate limited"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLadder_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Ladder(ctx, []time.Duration{time.Second}, nil, func(ctx context.Context) error {
		calls++
		return NewThrottleError(errors.New("rate limited"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestLadderVal_ReturnsValue(t *testing.T) {
	got, err := LadderVal(context.Background(), nil, nil, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestIsThrottle_WrappedChain(t *testing.T) {
	inner := NewThrottleError(errors.New("429"))
	wrapped := errors.Join(errors.New("pass 2"), inner)
	assert.True(t, IsThrottle(wrapped))
	assert.False(t, IsThrottle(errors.New("429")))
}

func TestIsTransient_Patterns(t *testing.T) {
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(NewTransientError(errors.New("503"), 503)))
	assert.False(t, IsTransient(errors.New("invalid input")))
	assert.False(t, IsTransient(nil))
}
