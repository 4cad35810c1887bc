package pricing

import "errors"

var (
	// ErrEmptyDeviceID is returned when a device id is empty.
	ErrEmptyDeviceID = errors.New("pricing: empty device id")
	// ErrNegativePrice is returned when a source is configured with a negative price.
	ErrNegativePrice = errors.New("pricing: negative price")
	// ErrInvalidTimestamp is returned when a lookup time is zero.
	ErrInvalidTimestamp = errors.New("pricing: invalid timestamp")
	// ErrPriceNotFound is returned when no price is configured for a time.
	ErrPriceNotFound = errors.New("pricing: price not found")
)
