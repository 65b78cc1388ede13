package types

import "errors"

var (
	// ErrDataUnavailable marks insufficient history for a requested window or
	// an empty provider response. Indicator values are reported as absent,
	// never defaulted to zero.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInvalidParameter marks out-of-range sizing or config input
	// (non-positive capital, risk fraction outside (0,1], ...).
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrCapacityExceeded marks a position add whose investment exceeds the
	// remaining uncommitted capital.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrNotFound marks a lookup of an unknown instrument or position.
	ErrNotFound = errors.New("not found")
)
