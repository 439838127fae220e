package pipeline

import (
	"context"
	"math/rand"
	"time"
)

// Backoff produces jittered exponential delays: base*2^attempt, capped at
// max, with up to 50% random jitter so concurrent workers do not retry in
// lockstep against the same throttled service.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) delay(attempt int) time.Duration {
	if b.Base <= 0 {
		b.Base = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	d := b.Base << attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// Sleep waits out the delay for attempt, or returns early on cancellation.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn up to attempts times, backing off between tries while
// retryable(err) holds. The last error is returned once the budget is
// spent or the error is not retryable.
func retry[T any](ctx context.Context, attempts int, b Backoff, retryable func(error) bool, fn func() (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, err
		}
		if i < attempts-1 {
			if serr := b.Sleep(ctx, i); serr != nil {
				return zero, serr
			}
		}
	}
	return zero, lastErr
}
