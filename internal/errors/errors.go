// Package errors provides standardized domain errors with codes for the collectr core.
//
// Usage:
//
//	// In services - return typed errors
//	if len(changes) == 0 {
//	    return errors.Validation("nothing to update")
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrRemoteUnreachable) {
//	    notify("You appear to be offline")
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeValidation:
//	        showFieldErrors(domainErr.Details)
//	    case errors.CodeRemoteRejected:
//	        showBanner(domainErr.Message)
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeValidation        Code = "VALIDATION"
	CodeConflict          Code = "CONFLICT"
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"
	CodeRemoteRejected    Code = "REMOTE_REJECTED"
	CodeRemoteUnreachable Code = "REMOTE_UNREACHABLE"
	CodePartialBatch      Code = "PARTIAL_BATCH"
	CodeSagaIncomplete    Code = "SAGA_INCOMPLETE"
	CodeInternal          Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict, CodeIllegalTransition:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeRemoteRejected:
		return http.StatusUnprocessableEntity
	case CodeRemoteUnreachable:
		return http.StatusBadGateway
	case CodePartialBatch, CodeSagaIncomplete:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists     = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict          = &Error{Code: CodeConflict, Message: "conflict"}
	ErrIllegalTransition = &Error{Code: CodeIllegalTransition, Message: "illegal status transition"}
	ErrRemoteRejected    = &Error{Code: CodeRemoteRejected, Message: "rejected by remote store"}
	ErrRemoteUnreachable = &Error{Code: CodeRemoteUnreachable, Message: "remote store unreachable"}
	ErrPartialBatch      = &Error{Code: CodePartialBatch, Message: "some relationship changes failed"}
	ErrSagaIncomplete    = &Error{Code: CodeSagaIncomplete, Message: "operation partially applied"}
	ErrInternal          = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// IllegalTransitionf creates an illegal transition error with formatted message.
func IllegalTransitionf(format string, args ...any) *Error {
	return &Error{Code: CodeIllegalTransition, Message: fmt.Sprintf(format, args...)}
}

// RemoteRejected creates a remote rejection error carrying a human-readable cause.
func RemoteRejected(msg string, cause error) *Error {
	return &Error{Code: CodeRemoteRejected, Message: msg, cause: cause}
}

// RemoteUnreachable creates a transport failure error.
func RemoteUnreachable(msg string, cause error) *Error {
	return &Error{Code: CodeRemoteUnreachable, Message: msg, cause: cause}
}

// PartialBatch creates a partial batch failure error; details list the failed operations.
func PartialBatch(msg string, details any) *Error {
	return &Error{Code: CodePartialBatch, Message: msg, Details: details}
}

// SagaIncomplete creates an error for a multi-step operation that stopped midway.
func SagaIncomplete(msg string, cause error) *Error {
	return &Error{Code: CodeSagaIncomplete, Message: msg, cause: cause}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
