// Package retry is the bounded-retry wrapper used around unreliable external
// calls. Backoff is fixed, not exponential; the delay is a tunable, not a
// strategy. Callers must only wrap operations that are safe to re-invoke:
// the transfer call is retried only because it carries a stable session id.
package retry

import (
	"context"
	"log"
	"time"
)

// Policy retries an operation up to MaxRetries additional times after the
// first failure, sleeping Delay between attempts. The last error is always
// propagated, never swallowed.
type Policy struct {
	MaxRetries int
	Delay      time.Duration

	// Sleep is injectable for tests; nil means a real context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn under the policy.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		log.Printf("[retry] attempt %d failed: %v", attempt+1, lastErr)

		if attempt < p.MaxRetries {
			if err := sleep(ctx, p.Delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// Do runs fn under the policy and returns its result.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
