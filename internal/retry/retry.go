// Package retry implements the bounded exponential backoff policy used
// for broker-gateway calls. Delays double from a base up to a cap, no
// jitter, so the schedule is fully predictable.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
	"github.com/ravitejakamalapuram/copytradepro/internal/taxonomy"
)

// Policy holds the retry parameters. The zero value is not usable;
// construct with DefaultPolicy or from config.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the standard policy: 3 attempts, 1s base
// delay doubling up to a 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// DelayFor returns the backoff delay after the given zero-based
// attempt: min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ShouldRetry reports whether another attempt is warranted: the
// failure must be retryable and the attempt counter (zero-based,
// counting attempts already made) must be below MaxAttempts.
func (p Policy) ShouldRetry(entry domain.ErrorTaxonomyEntry, attempt int) bool {
	return entry.IsRetryable && attempt < p.MaxAttempts
}

// Result carries the outcome of a retried operation: the last error
// (nil on success) and its classification.
type Result struct {
	Err      error
	Entry    domain.ErrorTaxonomyEntry
	Attempts int
}

// Do runs fn under the policy, classifying each failure and sleeping
// the backoff delay between attempts. It stops early on non-retryable
// failures and on context cancellation. Attempts in the result counts
// every invocation of fn, including the final one.
func Do(ctx context.Context, policy Policy, logger zerolog.Logger, fn func(ctx context.Context) error) Result {
	var lastErr error
	var lastEntry domain.ErrorTaxonomyEntry

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Err: err, Entry: taxonomy.Classify(err), Attempts: attempt}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return Result{Attempts: attempt + 1}
		}

		lastEntry = taxonomy.Classify(lastErr)
		// attempt+1 invocations have been made at this point
		if !policy.ShouldRetry(lastEntry, attempt+1) {
			return Result{Err: lastErr, Entry: lastEntry, Attempts: attempt + 1}
		}

		delay := policy.DelayFor(attempt)
		logger.Debug().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("kind", string(lastEntry.Kind)).
			Err(lastErr).
			Msg("Retrying after failure")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{Err: ctx.Err(), Entry: taxonomy.Classify(ctx.Err()), Attempts: attempt + 1}
		}
	}

	return Result{Err: lastErr, Entry: lastEntry, Attempts: policy.MaxAttempts}
}
