package statistics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"energy-ledger/internal/finance/domain"
)

// EntryVerification is the re-validation of one entry.
type EntryVerification struct {
	Timestamp           int64                    `json:"timestamp"`
	Type                finance.EntryType        `json:"type"`
	EnergyAmount        float64                  `json:"energyAmount"`
	PriceAtTime         *float64                 `json:"priceAtTime,omitempty"`
	EnergyValidation    finance.ValidationResult `json:"energyValidation"`
	TimestampValidation finance.ValidationResult `json:"timestampValidation"`
	ProfitSavings       float64                  `json:"profitSavings"`
	ProfitValidation    finance.ValidationResult `json:"profitValidation"`
	OriginalAudit       *EntryAudit              `json:"originalAudit,omitempty"`
	IsValid             bool                     `json:"isValid"`
}

// GetCalculationAuditTrail re-validates every entry whose timestamp lies in
// [start, end]. The records are diagnostic only.
func (a *Aggregator) GetCalculationAuditTrail(entries []Entry, start, end time.Time) []EntryVerification {
	out := make([]EntryVerification, 0)
	if end.Before(start) {
		return out
	}
	from, to := start.Unix(), end.Unix()
	for _, entry := range entries {
		if entry.Timestamp < from || entry.Timestamp > to {
			continue
		}
		profit := a.calc.EvaluateProfitSavings(entry.EnergyAmount, entry.PriceAtTime, entry.Type)
		v := EntryVerification{
			Timestamp:           entry.Timestamp,
			Type:                entry.Type,
			EnergyAmount:        entry.EnergyAmount,
			PriceAtTime:         entry.PriceAtTime,
			EnergyValidation:    a.calc.ValidateEnergyAmount(entry.EnergyAmount),
			TimestampValidation: a.calc.ValidateTimestamp(float64(entry.Timestamp)),
			ProfitSavings:       profit.ProfitSavings,
			ProfitValidation:    profit.Audit.Validation,
			OriginalAudit:       entry.CalculationAudit,
		}
		if !entry.Type.IsValid() {
			v.EnergyValidation.IsValid = false
			v.EnergyValidation.Errors = append(v.EnergyValidation.Errors, fmt.Sprintf("invalid entry type %q", entry.Type))
		}
		v.IsValid = v.EnergyValidation.IsValid && v.TimestampValidation.IsValid && v.ProfitValidation.IsValid
		out = append(out, v)
	}
	return out
}

// Summary is the roll-up of a whole entry list.
type Summary struct {
	TotalEntries         int          `json:"totalEntries"`
	ValidEntries         int          `json:"validEntries"`
	Days                 int          `json:"days"`
	TotalChargeEnergy    float64      `json:"totalChargeEnergy"`
	TotalDischargeEnergy float64      `json:"totalDischargeEnergy"`
	TotalProfit          float64      `json:"totalProfit"`
	TotalSavings         float64      `json:"totalSavings"`
	AveragePrice         *float64     `json:"averagePrice,omitempty"`
	PricedEntries        int          `json:"pricedEntries"`
	FirstTimestamp       int64        `json:"firstTimestamp,omitempty"`
	LastTimestamp        int64        `json:"lastTimestamp,omitempty"`
	Daily                []DailyStats `json:"daily"`
}

// SummaryAudit lists why entries were excluded plus the summed audit counters.
type SummaryAudit struct {
	InvalidEntries int       `json:"invalidEntries"`
	Errors         []string  `json:"errors,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	Totals         AuditInfo `json:"totals"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// SummaryResult pairs a summary with its audit.
type SummaryResult struct {
	Summary Summary      `json:"summary"`
	Audit   SummaryAudit `json:"audit"`
}

// GetStatisticsSummary validates and filters the list, aggregates it per
// day and averages the price over priced entries.
func (a *Aggregator) GetStatisticsSummary(entries []Entry) SummaryResult {
	res := SummaryResult{
		Summary: Summary{TotalEntries: len(entries)},
		Audit:   SummaryAudit{GeneratedAt: a.clock.Now().UTC()},
	}

	valid := make([]Entry, 0, len(entries))
	var priceSum decimal.Decimal
	for i, entry := range entries {
		if reason := a.invalidReason(entry); reason != "" {
			res.Audit.InvalidEntries++
			res.Audit.Errors = append(res.Audit.Errors, fmt.Sprintf("entry %d at %d: %s", i, entry.Timestamp, reason))
			continue
		}
		valid = append(valid, entry)

		if entry.PriceAtTime != nil {
			pv := a.calc.ValidateEnergyPrice(*entry.PriceAtTime)
			res.Audit.Warnings = append(res.Audit.Warnings, pv.Warnings...)
			if pv.IsValid {
				priceSum = priceSum.Add(decimal.NewFromFloat(*entry.PriceAtTime))
				res.Summary.PricedEntries++
			}
		}
		if res.Summary.FirstTimestamp == 0 || entry.Timestamp < res.Summary.FirstTimestamp {
			res.Summary.FirstTimestamp = entry.Timestamp
		}
		if entry.Timestamp > res.Summary.LastTimestamp {
			res.Summary.LastTimestamp = entry.Timestamp
		}
	}
	res.Summary.ValidEntries = len(valid)

	daily := a.AggregateDailyStats(valid)
	var charge, discharge, profit, savings decimal.Decimal
	for _, day := range daily {
		charge = charge.Add(decimal.NewFromFloat(day.TotalChargeEnergy))
		discharge = discharge.Add(decimal.NewFromFloat(day.TotalDischargeEnergy))
		profit = profit.Add(decimal.NewFromFloat(day.TotalProfit))
		savings = savings.Add(decimal.NewFromFloat(day.TotalSavings))
		res.Audit.Totals.add(day.AuditInfo)
	}
	res.Summary.Daily = daily
	res.Summary.Days = len(daily)
	res.Summary.TotalChargeEnergy = a.energy(charge)
	res.Summary.TotalDischargeEnergy = a.energy(discharge)
	res.Summary.TotalProfit = a.currency(profit)
	res.Summary.TotalSavings = a.currency(savings)

	if res.Summary.PricedEntries > 0 {
		avg := priceSum.Div(decimal.NewFromInt(int64(res.Summary.PricedEntries)))
		res.Summary.AveragePrice = finance.Float64(a.currency(avg))
	}
	return res
}

func (a *Aggregator) invalidReason(entry Entry) string {
	if !entry.Type.IsValid() {
		return fmt.Sprintf("invalid entry type %q", entry.Type)
	}
	if v := a.calc.ValidateEnergyAmount(entry.EnergyAmount); !v.IsValid {
		return v.Errors[0]
	}
	if v := a.calc.ValidateTimestamp(float64(entry.Timestamp)); !v.IsValid {
		return v.Errors[0]
	}
	return ""
}
