package statistics

import "errors"

var (
	// ErrNilCalculator is returned when an aggregator is built without a calculator.
	ErrNilCalculator = errors.New("statistics: nil calculator")
	// ErrEmptyDeviceID is returned when a store is called without a device id.
	ErrEmptyDeviceID = errors.New("statistics: empty device id")
	// ErrInvalidPeriod is returned when an audit window ends before it starts.
	ErrInvalidPeriod = errors.New("statistics: invalid period")
)
