// Package errors defines the application error taxonomy surfaced by the job service.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeValidation indicates invalid caller input.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodePaymentRequestFailed indicates the payment gateway rejected a new payment request.
	ErrCodePaymentRequestFailed ErrorCode = "payment_request_failed"
	// ErrCodeNotFound indicates an unknown job.
	ErrCodeNotFound ErrorCode = "not_found"
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout and ErrCodeCanceled come from FromContext and double as error classes.
	ErrCodeTimeout  ErrorCode = "timeout"
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is a categorized error with an optional cause and offending field.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newErr(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// ValidationField creates a validation error naming the offending input field.
func ValidationField(field, message string) *AppError {
	e := newErr(ErrCodeValidation, message)
	e.Field = field
	return e
}

// NotFoundf creates a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newErr(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// PaymentRequestFailed wraps a gateway failure raised while creating a payment request.
func PaymentRequestFailed(err error) *AppError {
	return Wrap(err, ErrCodePaymentRequestFailed, "payment request failed")
}

// Wrap wraps err with a code and message. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// FromContext converts context cancellation and deadline errors into AppErrors.
// Other errors are wrapped as internal.
func FromContext(err error, message string) *AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, message)
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, message)
	default:
		return Wrap(err, ErrCodeInternal, message)
	}
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsValidation(err error) bool           { return isCode(err, ErrCodeValidation) }
func IsPaymentRequestFailed(err error) bool { return isCode(err, ErrCodePaymentRequestFailed) }
func IsNotFound(err error) bool             { return isCode(err, ErrCodeNotFound) }

// GetCode returns the ErrorCode of err, or "" when err is not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the offending field of a validation error, if any.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
