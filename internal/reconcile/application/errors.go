package application

import "errors"

var (
	// ErrEmptyDeviceID is returned when a request carries no device id.
	ErrEmptyDeviceID = errors.New("reconcile: empty device id")
	// ErrInvalidSample is returned when a sample cannot be accumulated.
	ErrInvalidSample = errors.New("reconcile: invalid sample")
	// ErrNilDependency is returned when the service is built without a store or calculator.
	ErrNilDependency = errors.New("reconcile: nil dependency")
)
