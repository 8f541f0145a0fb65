package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass buckets remote failures for retry and messaging decisions.
type ErrorClass string

const (
	ErrorClassTimeout    ErrorClass = "timeout"
	ErrorClassPermission ErrorClass = "permission"
	ErrorClassNetwork    ErrorClass = "network"
	ErrorClassTransient  ErrorClass = "transient"
	ErrorClassValidation ErrorClass = "validation"
	ErrorClassGeneric    ErrorClass = "generic"
)

// ClassifiedError carries an explicit error class alongside the underlying
// failure. A timeout means the client stopped waiting; the remote effect may
// still have landed, so it is an unknown outcome rather than a guaranteed
// failure.
type ClassifiedError struct {
	Class   ErrorClass
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewTimeoutError wraps err as a client-side deadline failure
func NewTimeoutError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: ErrorClassTimeout, Message: message, Err: err}
}

// NewValidationError reports an unmet precondition; it is never sent to the
// remote store.
func NewValidationError(message string) *ClassifiedError {
	return &ClassifiedError{Class: ErrorClassValidation, Message: message}
}

// Classify determines the error class of a remote failure. Explicitly
// classified errors keep their class; everything else is matched on the
// error text the way the remote store reports policy, connectivity and
// contention failures.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassGeneric
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ErrorClassTimeout
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "row-level security"):
		return ErrorClassPermission
	case strings.Contains(msg, "busy") || strings.Contains(msg, "too many connections") || strings.Contains(msg, "deadlock") || strings.Contains(msg, "lock not available") || strings.Contains(msg, "try again") || strings.Contains(msg, "unavailable"):
		return ErrorClassTransient
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "no such host") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "dial tcp"):
		return ErrorClassNetwork
	default:
		return ErrorClassGeneric
	}
}

// Retryable reports whether the completion run should be replayed
// automatically. Only transient contention qualifies; timeouts, network and
// permission failures are surfaced for an explicit user retry.
func Retryable(err error) bool {
	return Classify(err) == ErrorClassTransient
}

// UserMessage maps a failure to the message shown in the completion UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) && classified.Class == ErrorClassTimeout {
		return classified.Message
	}

	switch Classify(err) {
	case ErrorClassTimeout:
		return "The operation timed out. Please check your connection and try again."
	case ErrorClassPermission:
		return "You do not have permission to complete this visit. Please contact your branch administrator."
	case ErrorClassNetwork:
		return "A network error occurred. Please check your connection and try again."
	case ErrorClassTransient:
		return "The service is busy. Please try again in a moment."
	case ErrorClassValidation:
		return err.Error()
	default:
		return "Something went wrong while completing the visit. Please try again."
	}
}
