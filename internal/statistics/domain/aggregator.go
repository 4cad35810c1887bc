package statistics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"energy-ledger/internal/finance/domain"
)

// DayLayout is the calendar day key of DailyStats.
const DayLayout = "2006-01-02"

// Aggregator rolls entries into daily figures. Days are cut in loc.
type Aggregator struct {
	calc  *finance.Calculator
	clock finance.Clock
	loc   *time.Location
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLocation sets the location used for day keys.
func WithLocation(loc *time.Location) AggregatorOption {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// NewAggregator constructs an Aggregator sharing the calculator clock.
func NewAggregator(calc *finance.Calculator, opts ...AggregatorOption) (*Aggregator, error) {
	if calc == nil {
		return nil, ErrNilCalculator
	}
	a := &Aggregator{calc: calc, clock: calc.Clock(), loc: time.UTC}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Location returns the day-key location.
func (a *Aggregator) Location() *time.Location { return a.loc }

// DayKey returns the calendar day of a unix timestamp.
func (a *Aggregator) DayKey(tsSec int64) string {
	return time.Unix(tsSec, 0).In(a.loc).Format(DayLayout)
}

// Today returns the current day key.
func (a *Aggregator) Today() string {
	return a.clock.Now().In(a.loc).Format(DayLayout)
}

type dayTotals struct {
	stats     *DailyStats
	charge    decimal.Decimal
	discharge decimal.Decimal
	profit    decimal.Decimal
	savings   decimal.Decimal
}

// AggregateDailyStats groups entries by day in a single pass and returns
// the days in ascending order. Entries failing energy validation are only
// counted as validation failures.
func (a *Aggregator) AggregateDailyStats(entries []Entry) []DailyStats {
	days := make(map[string]*dayTotals)
	for _, entry := range entries {
		key := a.DayKey(entry.Timestamp)
		day := days[key]
		if day == nil {
			day = &dayTotals{stats: &DailyStats{Date: key, Events: []Entry{}}}
			days[key] = day
		}

		if !a.entryUsable(entry) {
			day.stats.AuditInfo.ValidationFailures++
			continue
		}
		day.stats.Events = append(day.stats.Events, entry)
		day.stats.AuditInfo.note(entry)

		energy := decimal.NewFromFloat(math.Abs(entry.EnergyAmount))
		profit := decimal.NewFromFloat(a.calc.EvaluateProfitSavings(entry.EnergyAmount, entry.PriceAtTime, entry.Type).ProfitSavings)
		day.profit = day.profit.Add(profit)
		if entry.Type == finance.EntryTypeCharging {
			day.charge = day.charge.Add(energy)
		} else {
			day.discharge = day.discharge.Add(energy)
			day.savings = day.savings.Add(profit)
		}
	}

	out := make([]DailyStats, 0, len(days))
	for _, day := range days {
		day.stats.TotalChargeEnergy = a.energy(day.charge)
		day.stats.TotalDischargeEnergy = a.energy(day.discharge)
		day.stats.TotalProfit = a.currency(day.profit)
		day.stats.TotalSavings = a.currency(day.savings)
		out = append(out, *day.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// CalculateDetailedBreakdown splits today's entries into cost (charging at
// the entry price) and savings (discharging at the entry price).
func (a *Aggregator) CalculateDetailedBreakdown(entries []Entry) Breakdown {
	today := a.Today()
	var charge, discharge, cost, savings decimal.Decimal
	for _, entry := range entries {
		if a.DayKey(entry.Timestamp) != today || !a.entryUsable(entry) {
			continue
		}
		energy := decimal.NewFromFloat(math.Abs(entry.EnergyAmount))
		var value decimal.Decimal
		if entry.PriceAtTime != nil && a.calc.ValidateEnergyPrice(*entry.PriceAtTime).IsValid {
			value = energy.Mul(decimal.NewFromFloat(*entry.PriceAtTime))
		}
		if entry.Type == finance.EntryTypeCharging {
			charge = charge.Add(energy)
			cost = cost.Add(value)
		} else {
			discharge = discharge.Add(energy)
			savings = savings.Add(value)
		}
	}
	return Breakdown{
		Date:            today,
		ChargeEnergy:    a.energy(charge),
		DischargeEnergy: a.energy(discharge),
		Savings:         a.currency(savings),
		Cost:            a.currency(cost),
		NetProfit:       a.currency(savings.Sub(cost)),
	}
}

func (a *Aggregator) entryUsable(entry Entry) bool {
	return entry.Type.IsValid() && a.calc.ValidateEnergyAmount(entry.EnergyAmount).IsValid
}

func (a *Aggregator) energy(d decimal.Decimal) float64 {
	return d.RoundBank(int32(a.calc.Config().EnergyDecimals)).InexactFloat64()
}

func (a *Aggregator) currency(d decimal.Decimal) float64 {
	return d.RoundBank(int32(a.calc.Config().CurrencyDecimals)).InexactFloat64()
}
