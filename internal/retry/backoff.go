// Package retry is the single backoff wrapper applied to every
// external-capability call (embed, generate, analyze, index). It consults
// the fault taxonomy: only retryable failures get another attempt.
package retry

import (
	"context"
	"time"

	"paperchat/internal/faults"
)

// ExponentialBackoff returns delay based on attempt number.
// The delay doubles with each attempt: base * 2^attempt
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	return base * (1 << attempt)
}

// Policy bounds a retried operation.
type Policy struct {
	Attempts int           // total tries, including the first
	Base     time.Duration // first retry delay, doubled each attempt
}

// DefaultPolicy matches the bound the workers use for provider calls.
var DefaultPolicy = Policy{Attempts: 3, Base: 200 * time.Millisecond}

// Do runs op until it succeeds, exhausts the policy, or fails with a
// non-retryable fault. The last error is returned as-is so callers can
// still branch on its kind.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Base <= 0 {
		p.Base = 100 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !faults.Retryable(err) || attempt == p.Attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ExponentialBackoff(attempt, p.Base)):
		}
	}
	return err
}
