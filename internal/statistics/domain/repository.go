package statistics

import "context"

// EntryRepository persists the retained entry list of each device.
// Load returns an empty list for unknown devices.
type EntryRepository interface {
	Load(ctx context.Context, deviceID string) ([]Entry, error)
	Save(ctx context.Context, deviceID string, entries []Entry) error
}
