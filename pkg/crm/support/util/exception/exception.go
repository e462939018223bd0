// Package exception defines the errors raised during an import run and the helpers the
// retry and skip policies use to classify them.
package exception

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

const stackBufferSize = 2048

// registry maps the names usable in crm.import.retry.retryable_exceptions to sentinels.
var registry = struct {
	sync.RWMutex
	byName map[string]error
}{byName: make(map[string]error)}

// RegisterErrorType makes sentinel matchable by name. It panics on an empty name or nil sentinel.
func RegisterErrorType(name string, sentinel error) {
	if name == "" {
		panic("exception: empty error type name")
	}
	if sentinel == nil {
		panic(fmt.Sprintf("exception: nil sentinel for %q", name))
	}
	registry.Lock()
	registry.byName[name] = sentinel
	registry.Unlock()
}

// IsErrorTypeRegistered reports whether name can be used in retry configuration.
func IsErrorTypeRegistered(name string) bool {
	registry.RLock()
	defer registry.RUnlock()
	_, ok := registry.byName[name]
	return ok
}

func registered(name string) (error, bool) {
	registry.RLock()
	defer registry.RUnlock()
	err, ok := registry.byName[name]
	return err, ok
}

// BatchError is raised by engine modules (reader, writer, journal, config).
// The retryable and skippable flags feed the retry and skip policies.
type BatchError struct {
	// Module names the raising component, e.g. "writer" or "config".
	Module      string
	Message     string
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is captured at construction.
	StackTrace string
}

// NewBatchError creates a BatchError. Note the flag order: skippable, then retryable.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	buf := make([]byte, stackBufferSize)
	buf = buf[:runtime.Stack(buf, false)]
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf),
	}
}

func (e *BatchError) Error() string {
	if e.OriginalErr == nil {
		return fmt.Sprintf("[%s] %s", e.Module, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
}

func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports the retryable flag.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable reports the skippable flag.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err wraps a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsErrorOfType reports whether err matches name, which may be a registered sentinel
// name ("RateLimited"), a Go type name ("*net.OpError") or a message fragment
// ("connection refused"). Every error in the Unwrap chain is checked.
func IsErrorOfType(err error, name string) bool {
	if err == nil {
		return false
	}
	if sentinel, ok := registered(name); ok && errors.Is(err, sentinel) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(e.Error(), name) || typeNameMatches(e, name) {
			return true
		}
	}
	return false
}

func typeNameMatches(err error, name string) bool {
	t := reflect.TypeOf(err)
	if t.String() == name {
		return true
	}
	return t.Kind() == reflect.Ptr && t.Elem().String() == name
}

// ExtractErrorMessage returns the Message of the outermost RemoteError or BatchError,
// falling back to err.Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func init() {
	for name, sentinel := range map[string]error{
		RateLimitedException:       ErrRateLimited,
		TransientRemoteException:   ErrTransientRemote,
		PermanentRemoteException:   ErrPermanentRemote,
		ConfigurationException:     ErrConfiguration,
		"io.EOF":                   io.EOF,
		"io.ErrUnexpectedEOF":      io.ErrUnexpectedEOF,
		"context.DeadlineExceeded": context.DeadlineExceeded,
		"context.Canceled":         context.Canceled,
	} {
		RegisterErrorType(name, sentinel)
	}
}
