// Package retry applies a bounded fixed-delay retry to submit outcomes.
package retry

import (
	"context"
	"time"

	"direktori/internal/submit"
)

// Default policy values.
const (
	DefaultMaxAttempts = 2
	DefaultDelay       = 2 * time.Second
)

// Policy retries an operation while its outcome is Retryable and attempts
// remain. The zero value makes a single attempt.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Retryable selects outcome kinds worth another attempt. Nil retries
	// infrastructure issues only.
	Retryable func(submit.Kind) bool
}

// Result records the final outcome and how it was reached.
type Result struct {
	Outcome  submit.Outcome
	Attempts int
	// Exhausted is set when every attempt was used and the final outcome was
	// still retryable.
	Exhausted bool
	// Interrupted is set when cancellation stopped the retries early.
	Interrupted bool
}

// Default returns the infra-only policy used by worker pools.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay, Retryable: InfraOnly}
}

// InfraOnly retries KindInfraIssue.
func InfraOnly(k submit.Kind) bool {
	return k == submit.KindInfraIssue
}

func (p Policy) retryable(k submit.Kind) bool {
	if p.Retryable == nil {
		return InfraOnly(k)
	}
	return p.Retryable(k)
}

// Do runs fn until it yields a non-retryable outcome or attempts run out.
// fn receives the 1-based attempt number. Cancelling ctx stops waiting
// between attempts and returns the last outcome as interrupted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) submit.Outcome) Result {
	maxAttempts := max(1, p.MaxAttempts)
	var result Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Outcome = fn(ctx, attempt)
		result.Attempts = attempt
		if !p.retryable(result.Outcome.Kind) {
			return result
		}
		if attempt == maxAttempts {
			break
		}
		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				result.Interrupted = true
				return result
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			result.Interrupted = true
			return result
		}
	}
	result.Exhausted = true
	return result
}
