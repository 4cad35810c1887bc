package tariff

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"energy-ledger/internal/pricing/domain"
)

const (
	defaultTariffPlansTable = "tariff_plans"
	defaultTariffRulesTable = "tariff_rules"
)

// TariffSource resolves the price per kWh from monthly tariff plans and their
// minute-of-day rules stored in Postgres.
type TariffSource struct {
	db         *sql.DB
	plansTable string
	rulesTable string
}

// TariffOption configures the source.
type TariffOption func(*TariffSource)

// WithTariffPlansTable overrides the plans table name.
func WithTariffPlansTable(table string) TariffOption {
	return func(s *TariffSource) {
		if table != "" {
			s.plansTable = table
		}
	}
}

// WithTariffRulesTable overrides the rules table name.
func WithTariffRulesTable(table string) TariffOption {
	return func(s *TariffSource) {
		if table != "" {
			s.rulesTable = table
		}
	}
}

// NewTariffSource constructs a source.
func NewTariffSource(db *sql.DB, opts ...TariffOption) *TariffSource {
	s := &TariffSource{
		db:         db,
		plansTable: defaultTariffPlansTable,
		rulesTable: defaultTariffRulesTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PriceAt returns the price per kWh for a device at a specific time.
func (s *TariffSource) PriceAt(ctx context.Context, deviceID string, at time.Time) (float64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("tariff source: nil db")
	}
	if deviceID == "" {
		return 0, pricing.ErrEmptyDeviceID
	}
	if at.IsZero() {
		return 0, pricing.ErrInvalidTimestamp
	}

	utc := at.UTC()
	month := time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	planID, mode, err := s.loadPlan(ctx, deviceID, month)
	if err != nil {
		return 0, err
	}
	if mode != "fixed" && mode != "tou" {
		return 0, fmt.Errorf("tariff source: unknown mode %q", mode)
	}
	return s.loadRulePrice(ctx, planID, utc.Hour()*60+utc.Minute())
}

func (s *TariffSource) loadPlan(ctx context.Context, deviceID string, month time.Time) (string, string, error) {
	query := fmt.Sprintf(`
SELECT id, mode
FROM %s
WHERE device_id = $1 AND effective_month = $2
LIMIT 1`, s.plansTable)

	var planID, mode string
	if err := s.db.QueryRowContext(ctx, query, deviceID, month).Scan(&planID, &mode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", pricing.ErrPriceNotFound
		}
		return "", "", err
	}
	return planID, mode, nil
}

func (s *TariffSource) loadRulePrice(ctx context.Context, planID string, minute int) (float64, error) {
	query := fmt.Sprintf(`
SELECT price_per_kwh
FROM %s
WHERE plan_id = $1 AND start_minute <= $2 AND end_minute > $2
ORDER BY start_minute ASC
LIMIT 1`, s.rulesTable)

	var price float64
	if err := s.db.QueryRowContext(ctx, query, planID, minute).Scan(&price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, pricing.ErrPriceNotFound
		}
		return 0, err
	}
	return price, nil
}
