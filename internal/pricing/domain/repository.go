package pricing

import (
	"context"
	"time"
)

// HistoryRepository persists the price history of each device.
// Load returns an empty history for unknown devices.
type HistoryRepository interface {
	Load(ctx context.Context, deviceID string) (History, error)
	Save(ctx context.Context, deviceID string, history History) error
}

// Source resolves the price per kWh for a device at a specific time.
type Source interface {
	PriceAt(ctx context.Context, deviceID string, at time.Time) (float64, error)
}
