// Package errors provides standardized error handling for the vsslink SDK.
// It defines the error codes surfaced by the public API, helpers for
// consistent error wrapping, and classification predicates that drive the
// reconnect/retry policy of the client loops.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Code identifies the category of an SDK error.
type Code int

const (
	// CodeUnknown is an unclassified error (unexpected server response).
	CodeUnknown Code = iota
	// CodeNotFound indicates an unknown signal path.
	CodeNotFound
	// CodeTypeMismatch indicates a logical/physical type incompatibility.
	CodeTypeMismatch
	// CodeUnavailable indicates a transport or connection failure (retryable).
	CodeUnavailable
	// CodeFailedPrecondition indicates API misuse, e.g. registering after Start.
	CodeFailedPrecondition
	// CodeInvalidArgument indicates a rejected input, e.g. setting a non-VALID value.
	CodeInvalidArgument
	// CodeDeadlineExceeded indicates an explicit wait timed out.
	CodeDeadlineExceeded
	// CodeInternal indicates a partial batch failure or broker-side fault.
	CodeInternal
)

// String returns the string representation of a Code.
func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeTypeMismatch:
		return "type_mismatch"
	case CodeUnavailable:
		return "unavailable"
	case CodeFailedPrecondition:
		return "failed_precondition"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeDeadlineExceeded:
		return "deadline_exceeded"
	case CodeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a coded SDK error. It wraps an optional cause and carries the
// component/operation that produced it.
type Error struct {
	Code      Code
	Message   string
	Err       error
	Component string
	Operation string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// GetCode extracts the Code from an error chain. Nil errors report
// CodeUnknown; context deadline/cancellation map to their SDK equivalents.
func GetCode(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return CodeUnavailable
	}
	return CodeUnknown
}

// NotFound reports an unknown signal path.
func NotFound(path string) error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("signal not found in VSS metadata: %s", path),
	}
}

// TypeMismatch reports a logical/physical type incompatibility for a path,
// naming both types.
func TypeMismatch(path, expected, actual string) error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("type mismatch for %s: expected %s, got %s", path, expected, actual),
	}
}

// Unavailable reports a transport or connection failure. Unavailable errors
// are retryable.
func Unavailable(msg string, cause error) error {
	return &Error{Code: CodeUnavailable, Message: msg, Err: cause}
}

// Unavailablef formats an Unavailable error.
func Unavailablef(format string, args ...any) error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// FailedPrecondition reports API misuse (wrong lifecycle state).
func FailedPrecondition(msg string) error {
	return &Error{Code: CodeFailedPrecondition, Message: msg}
}

// InvalidArgument reports a rejected input.
func InvalidArgument(msg string) error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

// DeadlineExceeded reports a timed-out wait.
func DeadlineExceeded(operation string) error {
	return &Error{
		Code:    CodeDeadlineExceeded,
		Message: fmt.Sprintf("operation timed out: %s", operation),
	}
}

// Internal reports a broker-side or partial-batch failure.
func Internal(operation, reason string) error {
	return &Error{
		Code:    CodeInternal,
		Message: fmt.Sprintf("%s failed: %s", operation, reason),
	}
}

// Wrap creates a standardized error with context following the pattern
// "component.method: action failed: %w". The code of the cause is preserved.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:      GetCode(err),
		Message:   fmt.Sprintf("%s.%s: %s failed: %v", component, method, action, err),
		Err:       err,
		Component: component,
		Operation: method,
	}
}

// WrapUnavailable wraps an error as a retryable transport failure with context.
func WrapUnavailable(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:      CodeUnavailable,
		Message:   fmt.Sprintf("%s.%s: %s failed: %v", component, method, action, err),
		Err:       err,
		Component: component,
		Operation: method,
	}
}

// WrapInvalid wraps an error as non-retryable API misuse with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:      CodeInvalidArgument,
		Message:   fmt.Sprintf("%s.%s: %s failed: %v", component, method, action, err),
		Err:       err,
		Component: component,
		Operation: method,
	}
}

// IsTransient reports whether an error may heal on retry. Transport and
// deadline failures are transient; validation and precondition failures are
// not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case CodeUnavailable, CodeDeadlineExceeded:
		return true
	case CodeNotFound, CodeTypeMismatch, CodeFailedPrecondition, CodeInvalidArgument, CodeInternal:
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	// Fall back to message inspection for errors from the transport layer.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "network", "temporary", "unavailable"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return GetCode(err) == CodeNotFound }

// IsTypeMismatch reports whether err carries CodeTypeMismatch.
func IsTypeMismatch(err error) bool { return GetCode(err) == CodeTypeMismatch }

// IsFailedPrecondition reports whether err carries CodeFailedPrecondition.
func IsFailedPrecondition(err error) bool { return GetCode(err) == CodeFailedPrecondition }

// IsInvalidArgument reports whether err carries CodeInvalidArgument.
func IsInvalidArgument(err error) bool { return GetCode(err) == CodeInvalidArgument }

// IsDeadlineExceeded reports whether err carries CodeDeadlineExceeded.
func IsDeadlineExceeded(err error) bool { return GetCode(err) == CodeDeadlineExceeded }

// IsUnavailable reports whether err carries CodeUnavailable.
func IsUnavailable(err error) bool { return GetCode(err) == CodeUnavailable }
