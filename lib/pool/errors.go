package pool

import apperrors "github.com/go-i2p/sqlpool/lib/errors"

// Pool errors. These are aliases of the central definitions in lib/errors
// so callers can match them with errors.Is from either package.
var (
	// ErrInvalidConfiguration is returned by New for a nil factory or bad bounds.
	ErrInvalidConfiguration = apperrors.ErrInvalidConfiguration
	// ErrPoolExhausted is returned by Acquire when MaxSize resources exist.
	ErrPoolExhausted = apperrors.ErrPoolExhausted
	// ErrFactory wraps a factory failure returned by Acquire.
	ErrFactory = apperrors.ErrFactory
	// ErrInvalidHandle is returned by Release for nil or foreign handles.
	ErrInvalidHandle = apperrors.ErrInvalidHandle
	// ErrReleased is returned by operations on a released handle.
	ErrReleased = apperrors.ErrReleased
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = apperrors.ErrPoolClosed
)
