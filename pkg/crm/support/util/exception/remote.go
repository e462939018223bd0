package exception

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Category classifies a failure reported by, or on the way to, the remote CRM.
type Category int

const (
	// CategoryRateLimited marks an HTTP 429 (or equivalent) response. Always retried.
	CategoryRateLimited Category = iota + 1
	// CategoryTransient marks 5xx responses and network/timeout errors. Retried with backoff.
	CategoryTransient
	// CategoryPermanent marks 4xx responses other than 429. Never retried.
	CategoryPermanent
	// CategoryConfiguration marks unusable credentials or settings. Fatal for the run.
	CategoryConfiguration
)

// Names under which the category sentinels are registered.
const (
	RateLimitedException     = "RateLimited"
	TransientRemoteException = "TransientRemoteError"
	PermanentRemoteException = "PermanentRemoteError"
	ConfigurationException   = "ConfigurationError"
)

var (
	// ErrRateLimited is the sentinel matched by errors.Is for rate-limited responses.
	ErrRateLimited = errors.New(RateLimitedException)
	// ErrTransientRemote is the sentinel matched by errors.Is for transient remote failures.
	ErrTransientRemote = errors.New(TransientRemoteException)
	// ErrPermanentRemote is the sentinel matched by errors.Is for permanent remote failures.
	ErrPermanentRemote = errors.New(PermanentRemoteException)
	// ErrConfiguration is the sentinel matched by errors.Is for configuration failures.
	ErrConfiguration = errors.New(ConfigurationException)
)

// String returns the registered name of the category.
func (c Category) String() string {
	switch c {
	case CategoryRateLimited:
		return RateLimitedException
	case CategoryTransient:
		return TransientRemoteException
	case CategoryPermanent:
		return PermanentRemoteException
	case CategoryConfiguration:
		return ConfigurationException
	default:
		return "Unknown"
	}
}

func (c Category) sentinel() error {
	switch c {
	case CategoryRateLimited:
		return ErrRateLimited
	case CategoryTransient:
		return ErrTransientRemote
	case CategoryPermanent:
		return ErrPermanentRemote
	case CategoryConfiguration:
		return ErrConfiguration
	default:
		return nil
	}
}

// RemoteError is returned by object store adapters for any failed call.
type RemoteError struct {
	Category   Category
	StatusCode int
	// RetryAfter is the service-provided wait hint. Zero when absent.
	RetryAfter time.Duration
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("[remote] %s", e.Category)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying transport error, if any.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's category.
func (e *RemoteError) Is(target error) bool {
	return target != nil && target == e.Category.sentinel()
}

// NewRateLimitedError creates a rate-limited RemoteError carrying the retry hint.
func NewRateLimitedError(retryAfter time.Duration, message string) *RemoteError {
	return &RemoteError{Category: CategoryRateLimited, StatusCode: http.StatusTooManyRequests, RetryAfter: retryAfter, Message: message}
}

// NewTransientError creates a transient RemoteError. statusCode is 0 for network errors.
func NewTransientError(statusCode int, message string, err error) *RemoteError {
	return &RemoteError{Category: CategoryTransient, StatusCode: statusCode, Message: message, Err: err}
}

// NewPermanentError creates a permanent RemoteError.
func NewPermanentError(statusCode int, message string, err error) *RemoteError {
	return &RemoteError{Category: CategoryPermanent, StatusCode: statusCode, Message: message, Err: err}
}

// NewConfigurationError creates a fatal, non-retryable, non-skippable BatchError that matches ErrConfiguration.
func NewConfigurationError(module, message string, originalErr error) *BatchError {
	errToWrap := ErrConfiguration
	if originalErr != nil {
		errToWrap = errors.Join(ErrConfiguration, originalErr)
	}
	return NewBatchError(module, message, errToWrap, false, false)
}

// ClassifyStatus maps an HTTP status code to the error taxonomy.
// It returns nil for 2xx and 3xx codes.
func ClassifyStatus(statusCode int, retryAfter time.Duration, message string) error {
	switch {
	case statusCode < 400:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitedError(retryAfter, message)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &RemoteError{Category: CategoryConfiguration, StatusCode: statusCode, Message: message}
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return NewTransientError(statusCode, message, nil)
	default:
		return NewPermanentError(statusCode, message, nil)
	}
}

// ClassifyTransportError wraps an error returned by the HTTP transport.
// Cancellation is returned untouched so that it is never retried.
func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return NewTransientError(0, "request failed", err)
}

// CategoryOf returns the category of the first RemoteError in the chain.
func CategoryOf(err error) (Category, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Category, true
	}
	if errors.Is(err, ErrConfiguration) {
		return CategoryConfiguration, true
	}
	return 0, false
}

// IsRateLimited reports whether err signals a rate limit.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsConfiguration reports whether err is a fatal configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsPermanent reports whether err is a permanent remote error.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentRemote)
}

// RetryAfterHint returns the service-provided wait hint carried by err.
func RetryAfterHint(err error) (time.Duration, bool) {
	var re *RemoteError
	if errors.As(err, &re) && re.RetryAfter > 0 {
		return re.RetryAfter, true
	}
	return 0, false
}

// IsRetryable determines if an error is worth another attempt.
// Rate-limited and transient remote errors are retryable, as are BatchErrors flagged
// retryable and raw network errors. Cancellation never is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if c, ok := CategoryOf(err); ok {
		return c == CategoryRateLimited || c == CategoryTransient
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
