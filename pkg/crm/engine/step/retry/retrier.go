// Package retry re-runs remote operations according to a RetryPolicy.
package retry

import (
	"context"
	"time"

	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Listener is notified before every wait. attempt is the send that just failed (1-based).
type Listener func(attempt int, err error, wait time.Duration)

// Retrier runs an operation until it succeeds, fails with a non-retryable error,
// or exhausts the attempt budget of its policy.
type Retrier struct {
	policy            RetryPolicy
	rateLimitInterval time.Duration
	sleep             Sleeper
	listener          Listener
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the Sleeper used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) {
		if s != nil {
			r.sleep = s
		}
	}
}

// WithListener registers a function called before every wait.
func WithListener(l Listener) Option {
	return func(r *Retrier) { r.listener = l }
}

// NewRetrier creates a Retrier.
// rateLimitInterval is the wait after a rate-limited response that carries no Retry-After hint.
func NewRetrier(policy RetryPolicy, rateLimitInterval time.Duration, opts ...Option) *Retrier {
	r := &Retrier{
		policy:            policy,
		rateLimitInterval: rateLimitInterval,
		sleep:             ContextSleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy driving the Retrier.
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do runs op and returns the number of sends made together with the last error.
// A cancelled context ends the loop with the context's error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := r.policy.GetMaxAttempts()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts || !r.policy.ShouldRetry(err) {
			return attempt, err
		}

		wait := r.WaitFor(err, attempt-1)
		logger.Debugf("Attempt %d/%d failed (%v). Retrying in %v.", attempt, maxAttempts, err, wait)
		if r.listener != nil {
			r.listener(attempt, err, wait)
		}
		if serr := r.sleep(ctx, wait); serr != nil {
			return attempt, serr
		}
	}
}

// WaitFor returns the wait before the given 0-based retry.
// Rate-limited errors wait for the server's hint, or the rate limit interval without one.
func (r *Retrier) WaitFor(err error, retry int) time.Duration {
	if exception.IsRateLimited(err) {
		if hint, ok := exception.RetryAfterHint(err); ok {
			return hint
		}
		return r.rateLimitInterval
	}
	return r.policy.GetBackoffInterval(retry)
}
