// Package errors provides structured error types for sqlpool.
// Errors carry a code that the admin surface maps to an HTTP status, and a
// message that is safe to show to clients without leaking driver details.
//
// This package provides:
//   - Sentinel errors for the pool error taxonomy
//   - Error codes for response categorization
//   - Error wrapping with context preservation
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Code categorizes an error.
type Code int

// Error codes. Zero is reserved for "no error".
const (
	CodeInternal             Code = 1000 + iota // Unclassified failure
	CodeInvalidConfiguration                    // Pool constructed with bad parameters
	CodeExhausted                               // No admission slot left
	CodeFactory                                 // Resource creation failed
	CodeInvalidHandle                           // Nil or foreign handle
	CodeReleased                                // Handle already returned
	CodeClosed                                  // Pool or resource closed
	CodeInvalidInput                            // Bad caller input
	CodeTimeout                                 // Operation timeout
	CodeUnavailable                             // Backend unavailable
)

var codeNames = map[Code]string{
	CodeInternal:             "internal",
	CodeInvalidConfiguration: "invalid_configuration",
	CodeExhausted:            "exhausted",
	CodeFactory:              "factory",
	CodeInvalidHandle:        "invalid_handle",
	CodeReleased:             "released",
	CodeClosed:               "closed",
	CodeInvalidInput:         "invalid_input",
	CodeTimeout:              "timeout",
	CodeUnavailable:          "unavailable",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// HTTPStatus maps a code to the status the admin server answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidConfiguration, CodeInvalidHandle, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeReleased:
		return http.StatusGone
	case CodeExhausted:
		return http.StatusTooManyRequests
	case CodeClosed, CodeUnavailable, CodeFactory:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable indicates a backend is unavailable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")
)

// Pool errors
var (
	// ErrInvalidConfiguration is returned when a pool is constructed with
	// a nil factory or inconsistent size/timeout bounds.
	ErrInvalidConfiguration = fmt.Errorf("pool: invalid %w", ErrConfiguration)

	// ErrPoolExhausted is returned when every admission slot is taken.
	ErrPoolExhausted = errors.New("pool: maximum number of pooled resources has been reached")

	// ErrFactory wraps a failure of the resource factory.
	ErrFactory = errors.New("pool: resource factory failed")

	// ErrInvalidHandle is returned when releasing a nil handle or a handle
	// that belongs to a different pool.
	ErrInvalidHandle = errors.New("pool: handle does not belong to this pool")

	// ErrReleased is returned by operations on a handle that has been
	// released back to its pool.
	ErrReleased = errors.New("pool: handle has been released to the pool")

	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = fmt.Errorf("pool: %w", ErrClosed)

	// ErrBreakerOpen is returned by a guarded factory while its backend is
	// considered down.
	ErrBreakerOpen = fmt.Errorf("dial circuit open: %w", ErrUnavailable)
)

// Error is a structured error with a code and safe message.
type Error struct {
	// Code is the error code for categorization
	Code Code `json:"code"`
	// Message is a safe, user-facing error message
	Message string `json:"message"`
	// Err is the underlying error (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage returns a client-safe error message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// New creates a new structured error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and safe message.
// The original error is preserved for debugging but not exposed to clients.
func Wrap(code Code, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code.String()).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapInternal wraps an internal error with a generic message.
func WrapInternal(err error) *Error {
	if err != nil {
		log.WithError(err).Debug("wrapping internal error")
	}
	return &Error{
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// FromSentinel creates a structured error from a sentinel error, picking the
// code from the first sentinel found in err's tree. For factory failures the
// message is the sentinel's, so driver errors (which may contain a DSN) stay
// out of client responses.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}

	code := codeFromError(err)
	message := err.Error()
	if code == CodeFactory {
		message = ErrFactory.Error()
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// codeFromError maps sentinel errors to error codes.
func codeFromError(err error) Code {
	var structured *Error
	switch {
	case errors.As(err, &structured):
		return structured.Code
	case errors.Is(err, ErrInvalidConfiguration):
		return CodeInvalidConfiguration
	case errors.Is(err, ErrPoolExhausted):
		return CodeExhausted
	case errors.Is(err, ErrFactory):
		return CodeFactory
	case errors.Is(err, ErrInvalidHandle):
		return CodeInvalidHandle
	case errors.Is(err, ErrReleased):
		return CodeReleased
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// IsExhausted returns true if the error indicates the pool had no free slot.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}

// IsReleased returns true if the error indicates use of a released handle.
func IsReleased(err error) bool {
	return errors.Is(err, ErrReleased)
}

// IsFactory returns true if the error came from the resource factory.
func IsFactory(err error) bool {
	return errors.Is(err, ErrFactory)
}

// IsInvalidHandle returns true if the error indicates a nil or foreign handle.
func IsInvalidHandle(err error) bool {
	return errors.Is(err, ErrInvalidHandle)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
