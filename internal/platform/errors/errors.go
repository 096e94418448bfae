// Package errors provides error types and utilities for Ocular.
// It extends the standard errors package with the capture error taxonomy
// and wrapping helpers used at session boundaries.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the capture failure taxonomy
var (
	// ErrConnection indicates a transport-level failure (DNS, refused, timeout)
	ErrConnection = errors.New("connection failed")

	// ErrProtocol indicates an unexpected or malformed protocol message
	ErrProtocol = errors.New("protocol error")

	// ErrUnsupportedAuth indicates the server offered no compatible
	// (unauthenticated) security method
	ErrUnsupportedAuth = errors.New("no supported authentication method")

	// ErrDecode indicates a pixel sample or format that cannot be decoded
	ErrDecode = errors.New("decode error")

	// ErrEncode indicates an image encode or write failure
	ErrEncode = errors.New("encode error")

	// ErrInvalidTarget indicates a target unusable for the requested protocol
	ErrInvalidTarget = errors.New("invalid target")
)

// wrappedError wraps an error with additional context
type wrappedError struct {
	msg   string
	cause error
}

// Error implements the error interface
func (e *wrappedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap returns the underlying error
func (e *wrappedError) Unwrap() error {
	return e.cause
}

// Wrap wraps an error with additional context message.
// If err is nil, Wrap returns nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg:   msg,
		cause: err,
	}
}

// Wrapf wraps an error with a formatted context message.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Errorf formats according to a format specifier and returns an error.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// IsConnection reports whether the error is a transport failure.
func IsConnection(err error) bool {
	return Is(err, ErrConnection)
}

// IsProtocol reports whether the error is a protocol violation.
func IsProtocol(err error) bool {
	return Is(err, ErrProtocol)
}

// IsDecode reports whether the error is a pixel decode failure.
func IsDecode(err error) bool {
	return Is(err, ErrDecode)
}

// IsUnsupportedAuth reports whether the server offered no usable method.
func IsUnsupportedAuth(err error) bool {
	return Is(err, ErrUnsupportedAuth)
}
