package finance

import "errors"

var (
	// ErrNonFinite is returned when a NaN or infinite value reaches a primitive.
	ErrNonFinite = errors.New("finance: non-finite value")
	// ErrRoundingOverflow is returned when the scaled value cannot be represented exactly.
	ErrRoundingOverflow = errors.New("finance: rounding overflow")
	// ErrInvalidEntryType is returned for entry types other than charging/discharging.
	ErrInvalidEntryType = errors.New("finance: invalid entry type")
)
