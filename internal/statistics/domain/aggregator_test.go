package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-ledger/internal/finance/domain"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T, opts ...AggregatorOption) *Aggregator {
	t.Helper()
	calc := finance.NewCalculator(finance.DefaultConfig(), finance.WithClock(fixedClock{now: now}))
	agg, err := NewAggregator(calc, opts...)
	require.NoError(t, err)
	return agg
}

func at(d time.Duration) int64 { return now.Add(d).Unix() }

func charging(ts int64, kwh float64, price *float64) Entry {
	return Entry{Timestamp: ts, Type: finance.EntryTypeCharging, EnergyAmount: kwh, Duration: 60, PriceAtTime: price}
}

func discharging(ts int64, kwh float64, price *float64) Entry {
	return Entry{Timestamp: ts, Type: finance.EntryTypeDischarging, EnergyAmount: -kwh, Duration: 60, PriceAtTime: price}
}

func TestNewAggregator_NilCalculator(t *testing.T) {
	_, err := NewAggregator(nil)
	assert.ErrorIs(t, err, ErrNilCalculator)
}

func TestAggregateDailyStats(t *testing.T) {
	agg := newTestAggregator(t)
	entries := []Entry{
		charging(at(-2*time.Hour), 4, finance.Float64(0.25)),
		discharging(at(-1*time.Hour), 3, finance.Float64(0.40)),
		charging(at(-26*time.Hour), 2, finance.Float64(0.10)),
		discharging(at(-25*time.Hour), 1.5, nil),
		charging(at(-3*time.Hour), 0, finance.Float64(0.25)),
		{
			Timestamp: at(-30 * time.Minute), Type: finance.EntryTypeDischarging, EnergyAmount: -0.5,
			PriceAtTime: finance.Float64(0.40),
			CalculationAudit: &EntryAudit{
				Method:          "energy.meter_delta",
				PrecisionLoss:   true,
				OutlierDetected: true,
				RecoveryActions: []string{finance.RecoveryDivisorFallback},
			},
		},
	}

	days := agg.AggregateDailyStats(entries)
	require.Len(t, days, 2)

	yesterday := days[0]
	assert.Equal(t, "2026-03-01", yesterday.Date)
	assert.Equal(t, 2.0, yesterday.TotalChargeEnergy)
	assert.Equal(t, 1.5, yesterday.TotalDischargeEnergy)
	assert.Equal(t, -0.2, yesterday.TotalProfit)
	assert.Equal(t, 0.0, yesterday.TotalSavings)
	assert.Equal(t, 1, yesterday.AuditInfo.UnpricedEntries)
	assert.Len(t, yesterday.Events, 2)

	today := days[1]
	assert.Equal(t, "2026-03-02", today.Date)
	assert.Equal(t, 4.0, today.TotalChargeEnergy)
	assert.Equal(t, 3.5, today.TotalDischargeEnergy)
	// -1.0 cost, +1.2 and +0.2 savings
	assert.Equal(t, 0.4, today.TotalProfit)
	assert.Equal(t, 1.4, today.TotalSavings)
	assert.Equal(t, 1, today.AuditInfo.ValidationFailures, "zero energy entry is rejected")
	assert.Equal(t, 1, today.AuditInfo.PrecisionLosses)
	assert.Equal(t, 1, today.AuditInfo.OutliersDetected)
	assert.Equal(t, 1, today.AuditInfo.RecoveryActions)
	assert.Len(t, today.Events, 3)
}

func TestAggregateDailyStats_DayKeyInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	agg := newTestAggregator(t, WithLocation(loc))

	// 23:00 UTC on 2026-03-01 is already 2026-03-02 at UTC+2
	ts := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC).Unix()
	days := agg.AggregateDailyStats([]Entry{charging(ts, 1, nil)})
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-02", days[0].Date)
}

func TestAggregateDailyStats_Empty(t *testing.T) {
	agg := newTestAggregator(t)
	assert.Empty(t, agg.AggregateDailyStats(nil))
}

func TestCalculateDetailedBreakdown(t *testing.T) {
	agg := newTestAggregator(t)
	entries := []Entry{
		charging(at(-2*time.Hour), 4, finance.Float64(0.25)),
		charging(at(-90*time.Minute), 1, nil),
		discharging(at(-1*time.Hour), 3, finance.Float64(0.40)),
		discharging(at(-26*time.Hour), 10, finance.Float64(0.40)),
	}

	b := agg.CalculateDetailedBreakdown(entries)
	assert.Equal(t, "2026-03-02", b.Date)
	assert.Equal(t, 5.0, b.ChargeEnergy)
	assert.Equal(t, 3.0, b.DischargeEnergy)
	assert.Equal(t, 1.0, b.Cost)
	assert.Equal(t, 1.2, b.Savings)
	assert.Equal(t, 0.2, b.NetProfit)
}

func TestReadViews_LeaveCalculatorAuditTrail(t *testing.T) {
	calc := finance.NewCalculator(finance.DefaultConfig(), finance.WithClock(fixedClock{now: now}))
	agg, err := NewAggregator(calc)
	require.NoError(t, err)

	calc.ResolveDivisor(25, 10)
	before := calc.AuditTrail()
	require.Len(t, before, 1)

	entries := hourlyEntries(24)
	agg.AggregateDailyStats(entries)
	agg.CalculateDetailedBreakdown(entries)
	agg.GetStatisticsSummary(entries)
	agg.GetCalculationAuditTrail(entries, now.Add(-48*time.Hour), now)

	assert.Equal(t, before, calc.AuditTrail())
}
