package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
)

// RetryPolicy caps how often a chunk or edge is resent and how long to wait in between.
type RetryPolicy interface {
	// ShouldRetry reports whether err warrants another send.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before 0-based retry n (0 follows the first failed send).
	GetBackoffInterval(n int) time.Duration
	// GetMaxAttempts returns the total number of sends, first send included.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory builds policies from crm.import.retry.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create returns an exponential policy. MaxAttempts below 1 becomes 1 and a factor
// below 1 becomes 1 (constant backoff).
func (f *DefaultRetryPolicyFactory) Create(cfg config.RetryConfig) RetryPolicy {
	return &exponentialPolicy{
		maxAttempts: max(cfg.MaxAttempts, 1),
		initial:     time.Duration(cfg.InitialInterval) * time.Millisecond,
		ceiling:     time.Duration(cfg.MaxInterval) * time.Millisecond,
		factor:      math.Max(cfg.Factor, 1),
		retryable:   cfg.RetryableExceptions,
	}
}

// exponentialPolicy waits initial*factor^n, capped by ceiling when ceiling is positive.
type exponentialPolicy struct {
	maxAttempts int
	initial     time.Duration
	ceiling     time.Duration
	factor      float64
	retryable   []string
}

func (p *exponentialPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry never retries cancellation, permanent or configuration errors. Rate-limited,
// transient remote and network errors are always retried; retryable_exceptions only adds
// further names on top of them.
func (p *exponentialPolicy) ShouldRetry(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case exception.IsPermanent(err), exception.IsConfiguration(err):
		return false
	case exception.IsRetryable(err):
		return true
	}
	for _, name := range p.retryable {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

func (p *exponentialPolicy) GetBackoffInterval(n int) time.Duration {
	wait := float64(p.initial) * math.Pow(p.factor, float64(max(n, 0)))
	if p.ceiling > 0 && wait > float64(p.ceiling) {
		return p.ceiling
	}
	return time.Duration(wait)
}

var _ RetryPolicy = (*exponentialPolicy)(nil)
