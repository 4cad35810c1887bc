package tariff

import (
	"context"
	"time"

	"energy-ledger/internal/pricing/domain"
)

// FixedPriceSource returns the same price per kWh for every device and time.
type FixedPriceSource struct {
	price float64
}

// NewFixedPriceSource constructs the source.
func NewFixedPriceSource(price float64) (*FixedPriceSource, error) {
	if price < 0 {
		return nil, pricing.ErrNegativePrice
	}
	return &FixedPriceSource{price: price}, nil
}

// PriceAt returns the configured price.
func (s *FixedPriceSource) PriceAt(ctx context.Context, deviceID string, at time.Time) (float64, error) {
	_ = ctx
	_ = deviceID
	if at.IsZero() {
		return 0, pricing.ErrInvalidTimestamp
	}
	return s.price, nil
}
