package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps err with a message while keeping the code of the first *Error in
// its chain. Context errors map to CANCELLED and TIMEOUT; anything else becomes
// INTERNAL. Wrap returns nil for a nil err.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		wrapped := &Error{
			code:      classified.code,
			category:  classified.category,
			message:   message,
			cause:     err,
			metadata:  classified.Metadata(),
			timestamp: classified.timestamp,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	opts = append(opts, WithCause(err))
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(ErrCodeTimeout, message, opts...)
	case errors.Is(err, context.Canceled):
		return New(ErrCodeCancelled, message, opts...)
	default:
		return New(ErrCodeInternal, message, opts...)
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps err under a specific code regardless of what it carries.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// AsError extracts the first *Error from err's chain, or nil.
func AsError(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return nil
}

// Is reports whether any error in the chain carries code.
func Is(err error, code ErrorCode) bool {
	if e := AsError(err); e != nil {
		return e.code == code
	}
	return false
}

// IsCategory reports whether the first *Error in the chain has category.
func IsCategory(err error, category ErrorCategory) bool {
	if e := AsError(err); e != nil {
		return e.category == category
	}
	return false
}

// CodeOf returns the code of the first *Error in the chain, or INTERNAL for
// unclassified errors. Used as a log and metric label.
func CodeOf(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.code
	}
	return ErrCodeInternal
}
