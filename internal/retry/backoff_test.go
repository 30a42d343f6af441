package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"paperchat/internal/faults"
)

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}

	for _, tt := range tests {
		result := ExponentialBackoff(tt.attempt, base)
		if result != tt.expected {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, result, tt.expected)
		}
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Base: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return faults.Provider("flaky", errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5, Base: time.Millisecond}, func(context.Context) error {
		calls++
		return faults.Input("empty text")
	})
	if calls != 1 {
		t.Fatalf("input faults must not be retried, got %d calls", calls)
	}
	if !faults.IsKind(err, faults.KindInput) {
		t.Fatalf("expected the original fault back, got %v", err)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("still down")
	err := Do(context.Background(), Policy{Attempts: 3, Base: time.Millisecond}, func(context.Context) error {
		calls++
		return faults.Provider("index upsert", cause)
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected last error, got %v", err)
	}
}

func TestDoHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{Attempts: 3, Base: time.Hour}, func(context.Context) error {
		return faults.Provider("slow", errors.New("transient"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
