package tariff

import (
	"context"
	"errors"
	"sort"
	"time"

	"energy-ledger/internal/pricing/domain"
)

const minutesPerDay = 24 * 60

// Window prices the minutes [StartMinute, EndMinute) of a local day.
type Window struct {
	StartMinute int     `yaml:"start_minute"`
	EndMinute   int     `yaml:"end_minute"`
	Price       float64 `yaml:"price"`
}

// ScheduleSource is a time-of-use table shared by all devices.
type ScheduleSource struct {
	windows []Window
	loc     *time.Location
}

// NewScheduleSource validates and sorts the windows. A nil location means UTC.
func NewScheduleSource(windows []Window, loc *time.Location) (*ScheduleSource, error) {
	if len(windows) == 0 {
		return nil, errors.New("tariff schedule: no windows")
	}
	if loc == nil {
		loc = time.UTC
	}
	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartMinute < sorted[j].StartMinute })

	for i, w := range sorted {
		if w.StartMinute < 0 || w.EndMinute > minutesPerDay || w.StartMinute >= w.EndMinute {
			return nil, errors.New("tariff schedule: invalid window bounds")
		}
		if w.Price < 0 {
			return nil, pricing.ErrNegativePrice
		}
		if i > 0 && sorted[i-1].EndMinute > w.StartMinute {
			return nil, errors.New("tariff schedule: overlapping windows")
		}
	}
	return &ScheduleSource{windows: sorted, loc: loc}, nil
}

// PriceAt returns the price of the window containing at.
func (s *ScheduleSource) PriceAt(ctx context.Context, deviceID string, at time.Time) (float64, error) {
	_ = ctx
	_ = deviceID
	if at.IsZero() {
		return 0, pricing.ErrInvalidTimestamp
	}
	local := at.In(s.loc)
	minute := local.Hour()*60 + local.Minute()
	for _, w := range s.windows {
		if w.StartMinute <= minute && minute < w.EndMinute {
			return w.Price, nil
		}
	}
	return 0, pricing.ErrPriceNotFound
}
