package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// BackoffStrategy gives the wait before retry number attempt (0-indexed)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles Base per attempt up to Max and spreads each
// delay by up to Jitter of itself in either direction.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultExponentialBackoff waits about 100ms, 200ms, 400ms... capped at 5s
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{Base: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.1}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := b.Base
	for i := 0; i < attempt && delay < b.Max; i++ {
		delay *= 2
	}
	if delay > b.Max {
		delay = b.Max
	}
	if b.Jitter > 0 {
		delay += time.Duration((rand.Float64()*2 - 1) * b.Jitter * float64(delay))
	}
	return delay
}

// FixedBackoff waits the same Delay before every retry
type FixedBackoff struct {
	Delay time.Duration
}

func (b *FixedBackoff) NextDelay(int) time.Duration {
	return b.Delay
}

// Retry calls fn until it succeeds, returns an error retryable rejects, or
// maxRetries retries are spent. onRetry, if set, runs before each wait.
func Retry(ctx context.Context, maxRetries int, backoff BackoffStrategy, retryable func(error) bool,
	onRetry func(attempt int, delay time.Duration), fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil || !retryable(err) || attempt >= maxRetries {
			return err
		}

		delay := backoff.NextDelay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
