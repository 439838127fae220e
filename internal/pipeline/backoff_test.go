package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: 400 * time.Millisecond}
	for attempt, want := range map[int]time.Duration{
		0: 100 * time.Millisecond,
		1: 200 * time.Millisecond,
		2: 400 * time.Millisecond,
		5: 400 * time.Millisecond, // capped
	} {
		d := b.delay(attempt)
		if d < want || d > want+want/2 {
			t.Errorf("delay(%d) = %v, want %v..%v", attempt, d, want, want+want/2)
		}
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, err := retry(context.Background(), 5, Backoff{Base: time.Millisecond, Max: time.Millisecond},
		func(error) bool { return false },
		func() (int, error) {
			calls++
			return 0, fatal
		})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	_, err := retry(context.Background(), 3, Backoff{Base: time.Millisecond, Max: time.Millisecond},
		func(error) bool { return true },
		func() (int, error) {
			calls++
			return 0, transient
		})
	if !errors.Is(err, transient) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want the full budget", calls)
	}
}

func TestRetrySucceedsMidway(t *testing.T) {
	calls := 0
	v, err := retry(context.Background(), 3, Backoff{Base: time.Millisecond, Max: time.Millisecond},
		func(error) bool { return true },
		func() (int, error) {
			calls++
			if calls < 2 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
	if err != nil || v != 42 {
		t.Fatalf("v, err = %d, %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := retry(ctx, 3, Backoff{Base: time.Hour, Max: time.Hour},
		func(error) bool { return true },
		func() (int, error) { return 0, errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
