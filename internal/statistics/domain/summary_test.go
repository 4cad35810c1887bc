package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-ledger/internal/finance/domain"
)

func TestGetCalculationAuditTrail(t *testing.T) {
	agg := newTestAggregator(t)
	entries := []Entry{
		charging(at(-5*time.Hour), 1, finance.Float64(0.2)),
		charging(at(-2*time.Hour), 500, finance.Float64(0.2)),
		discharging(at(-1*time.Hour), 2, nil),
		charging(at(-30*time.Hour), 1, finance.Float64(0.2)),
	}

	trail := agg.GetCalculationAuditTrail(entries, now.Add(-6*time.Hour), now)
	require.Len(t, trail, 3)

	assert.True(t, trail[0].IsValid)
	assert.Equal(t, -0.2, trail[0].ProfitSavings)

	assert.False(t, trail[1].IsValid)
	assert.False(t, trail[1].EnergyValidation.IsValid)

	assert.False(t, trail[2].IsValid, "missing price fails closed")
	assert.False(t, trail[2].ProfitValidation.IsValid)
	assert.Equal(t, 0.0, trail[2].ProfitSavings)

	assert.Empty(t, agg.GetCalculationAuditTrail(entries, now, now.Add(-time.Hour)))
}

func TestGetStatisticsSummary(t *testing.T) {
	agg := newTestAggregator(t)
	entries := []Entry{
		charging(at(-26*time.Hour), 2, finance.Float64(0.10)),
		charging(at(-2*time.Hour), 4, finance.Float64(0.25)),
		discharging(at(-1*time.Hour), 3, finance.Float64(0.40)),
		discharging(at(-30*time.Minute), 1, nil),
		{Timestamp: at(-time.Hour), Type: "idle", EnergyAmount: 1},
		charging(at(time.Hour), 1, finance.Float64(0.25)),
	}

	res := agg.GetStatisticsSummary(entries)
	s := res.Summary
	assert.Equal(t, 6, s.TotalEntries)
	assert.Equal(t, 4, s.ValidEntries)
	assert.Equal(t, 2, s.Days)
	assert.Equal(t, 6.0, s.TotalChargeEnergy)
	assert.Equal(t, 4.0, s.TotalDischargeEnergy)
	assert.Zero(t, s.TotalProfit)
	assert.Equal(t, 1.2, s.TotalSavings)
	assert.Equal(t, 3, s.PricedEntries)
	require.NotNil(t, s.AveragePrice)
	assert.Equal(t, 0.25, *s.AveragePrice)
	assert.Equal(t, at(-26*time.Hour), s.FirstTimestamp)
	assert.Equal(t, at(-30*time.Minute), s.LastTimestamp)

	assert.Equal(t, 2, res.Audit.InvalidEntries, "unknown type and future timestamp")
	assert.Len(t, res.Audit.Errors, 2)
	assert.Equal(t, 1, res.Audit.Totals.UnpricedEntries)
	assert.Equal(t, now, res.Audit.GeneratedAt)
}

func TestGetStatisticsSummary_NoPrices(t *testing.T) {
	agg := newTestAggregator(t)
	res := agg.GetStatisticsSummary([]Entry{charging(at(-time.Hour), 1, nil)})
	assert.Nil(t, res.Summary.AveragePrice)
	assert.Equal(t, 1, res.Summary.ValidEntries)
}
