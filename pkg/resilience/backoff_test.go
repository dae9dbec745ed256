package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_NextDelay(t *testing.T) {
	b := &ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, b.NextDelay(0))
	assert.Equal(t, 200*time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 800*time.Millisecond, b.NextDelay(3))
	assert.Equal(t, time.Second, b.NextDelay(4))
	assert.Equal(t, time.Second, b.NextDelay(60))
}

func TestExponentialBackoff_JitterStaysInBounds(t *testing.T) {
	b := DefaultExponentialBackoff()
	for i := 0; i < 100; i++ {
		d := b.NextDelay(1)
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}

var errTransient = errors.New("connection reset")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var calls, retries int
	err := Retry(context.Background(), 3, &FixedBackoff{}, isTransient,
		func(attempt int, _ time.Duration) { retries = attempt },
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRetry_StopsOnFinalError(t *testing.T) {
	final := errors.New("declined")
	calls := 0
	err := Retry(context.Background(), 3, &FixedBackoff{}, isTransient, nil, func(context.Context) error {
		calls++
		return final
	})

	assert.ErrorIs(t, err, final)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, &FixedBackoff{}, isTransient, nil, func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestRetry_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, &FixedBackoff{Delay: time.Hour}, isTransient, nil, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
