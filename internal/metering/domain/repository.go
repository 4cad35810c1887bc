package metering

import "context"

// StateRepository persists one accumulator state per device.
// Load returns ErrStateNotFound before the first sample of a device.
type StateRepository interface {
	Load(ctx context.Context, deviceID string) (*State, error)
	Save(ctx context.Context, deviceID string, state State) error
}
