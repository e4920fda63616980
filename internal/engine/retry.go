package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/embx-dev/embx/internal/errs"
)

// retryPolicy bounds retries of a single provider call. attempts counts the
// additional attempts allowed beyond the first; backoff is the delay before
// the first retry and doubles for each one after.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

// retryWithBackoff runs fn until it succeeds, fails with a non-retryable
// fault, or exhausts the attempt budget. Validation and configuration
// faults propagate immediately. Provider faults are retried; any other
// error is wrapped into a provider fault (message preserved) and retried.
// A zero backoff still yields to the scheduler between attempts.
func retryWithBackoff[T any](ctx context.Context, policy retryPolicy, fn func() (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if errors.Is(err, errs.ErrValidation) || errors.Is(err, errs.ErrConfiguration) {
			return zero, err
		}
		if !errors.Is(err, errs.ErrProvider) {
			err = fmt.Errorf("%w: %v", errs.ErrProvider, err)
		}

		if attempt >= policy.attempts {
			return zero, err
		}

		// Delay before retry n is backoff << n, n 0-based.
		delay := policy.backoff << attempt
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
