package metering

import (
	"errors"
	"math"
)

var (
	// ErrInvalidTimestamp is returned when a sample timestamp is not positive.
	ErrInvalidTimestamp = errors.New("metering: invalid timestamp")
	// ErrNonFiniteCounter is returned when a counter reading is NaN or infinite.
	ErrNonFiniteCounter = errors.New("metering: non-finite counter")
	// ErrInvalidDivisor is returned when the raw-per-kWh divisor is not positive.
	ErrInvalidDivisor = errors.New("metering: invalid divisor")
	// ErrStateInvariant is returned when the last sample precedes the interval anchor.
	ErrStateInvariant = errors.New("metering: state invariant violated")
	// ErrEmptyDeviceID is returned when a store is called without a device id.
	ErrEmptyDeviceID = errors.New("metering: empty device id")
	// ErrStateNotFound is returned when no state has been stored for a device.
	ErrStateNotFound = errors.New("metering: state not found")
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
