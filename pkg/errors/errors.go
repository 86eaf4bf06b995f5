// Package errors provides the unified error type and factory functions for
// LexAlert. Every layer (domain, application, infrastructure, interfaces) uses
// AppError as the single carrier for structured error information, so HTTP
// responses, logs and metrics all agree on one error code.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the structured error type used throughout LexAlert. It supports
// errors.Is / errors.As / errors.Unwrap across layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeDeadlineNotFound, "deadline not found")
//	return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list deadlines")
//	return errors.InvalidParam("title is required").WithDetail("field=title")
type AppError struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description, safe for API responses.
	Message string

	// Detail carries supplementary context (ids, parameters) for debugging.
	Detail string

	// Cause is the underlying error, if any.
	Cause error

	// Stack is captured by New and Wrap. It is never part of Error().
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>"; the detail segment is omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any *AppError target carrying the same code, so sentinel
// AppErrors work with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// It is safe to call on a nil pointer.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

// New constructs a fresh AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf is New with fmt-style formatting.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError around err. If err is nil, Wrap returns nil so
// it can be used inline.
//
// When code is CodeUnknown and err already carries an AppError, the original
// code is preserved.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Inspection
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any error in err's chain is an *AppError with code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// hasAnyCode walks the chain looking for any of codes.
func hasAnyCode(err error, codes ...ErrorCode) bool {
	for _, c := range codes {
		if IsCode(err, c) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a generic or domain-specific not-found.
func IsNotFound(err error) bool {
	return hasAnyCode(err, ErrCodeNotFound, ErrCodeDeadlineNotFound, ErrCodeNotificationNotFound)
}

// IsValidation reports whether err is a caller-input problem.
func IsValidation(err error) bool {
	return hasAnyCode(err, ErrCodeBadRequest, ErrCodeValidation, ErrCodeDeadlineInvalid)
}

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool {
	return hasAnyCode(err, ErrCodeConflict, ErrCodeDeadlineCompleted, ErrCodeDispatchLocked)
}

// IsForbidden reports whether err is an access-policy rejection.
func IsForbidden(err error) bool {
	return hasAnyCode(err, ErrCodeForbidden, ErrCodeDeadlineAccessDenied)
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return IsCode(err, ErrCodeUnauthorized)
}

// GetCode extracts the ErrorCode from the first *AppError in err's chain.
// It returns CodeOK for nil and CodeUnknown for foreign errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// ─────────────────────────────────────────────────────────────────────────────
// Convenience constructors
// ─────────────────────────────────────────────────────────────────────────────

// NotFound constructs a CodeNotFound AppError.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Stack: captureStack(1)}
}

// InvalidParam constructs a CodeInvalidParam AppError.
func InvalidParam(message string) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: message, Stack: captureStack(1)}
}

// InvalidState constructs a CodeConflict AppError, used for domain state violations.
func InvalidState(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Stack: captureStack(1)}
}

// Unauthorized constructs a CodeUnauthorized AppError.
func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, Stack: captureStack(1)}
}

// Forbidden constructs a CodeForbidden AppError.
func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Stack: captureStack(1)}
}

// Internal constructs a CodeInternal AppError. Log the underlying cause
// before or after calling Internal.
func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Stack: captureStack(1)}
}

// Conflict constructs a CodeConflict AppError.
func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Stack: captureStack(1)}
}
