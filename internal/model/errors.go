package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// AccessDeniedError maps to HTTP 403.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string { return "access denied: " + e.Reason }

// QuotaExceededError maps to HTTP 429 and carries the window reset.
type QuotaExceededError struct {
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded, retry after %s", e.RetryAfter)
}

// UnavailableError maps to HTTP 503. Used when a gate's backing store is
// unreachable; abuse controls fail closed.
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string { return "temporarily unavailable: " + e.Cause.Error() }
func (e *UnavailableError) Unwrap() error { return e.Cause }

// CircuitOpenError is returned by a breaker in the OPEN state. Retryable by
// the queue.
type CircuitOpenError struct {
	Service   string
	RetryInMs int64
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, next probe in %dms", e.Service, e.RetryInMs)
}

// TimeoutError marks an aborted stage. Retryable inside the queue; at the
// request boundary it surfaces as 503.
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string { return "timeout in stage " + e.Stage }

// UpstreamError wraps a downstream failure. Permanent failures (auth
// rejections, content unavailability) are never retried and trigger the
// final-attempt fallback script.
type UpstreamError struct {
	Service   string
	Permanent bool
	Cause     error
}

func (e *UpstreamError) Error() string {
	kind := "upstream failure"
	if e.Permanent {
		kind = "permanent upstream failure"
	}
	return fmt.Sprintf("%s (%s): %v", kind, e.Service, e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// IsRetryable classifies an error for the queue retry policy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return !up.Permanent
	}
	var co *CircuitOpenError
	if errors.As(err, &co) {
		return true
	}
	var to *TimeoutError
	if errors.As(err, &to) {
		return true
	}
	if errors.Is(err, ErrValidation) {
		return false
	}
	return true
}

// ErrorClass names an error for metrics and job records.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	var (
		ad *AccessDeniedError
		qe *QuotaExceededError
		ue *UnavailableError
		co *CircuitOpenError
		to *TimeoutError
		up *UpstreamError
	)
	switch {
	case errors.As(err, &ad):
		return "access_denied"
	case errors.As(err, &qe):
		return "quota_exceeded"
	case errors.As(err, &ue):
		return "unavailable"
	case errors.As(err, &co):
		return "circuit_open"
	case errors.As(err, &to):
		return "timeout"
	case errors.As(err, &up):
		if up.Permanent {
			return "permanent_upstream"
		}
		return "upstream"
	}
	return "internal"
}
