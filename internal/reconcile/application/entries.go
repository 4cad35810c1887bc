package application

import (
	"fmt"
	"math"

	"energy-ledger/internal/finance/domain"
	"energy-ledger/internal/metering/domain"
	"energy-ledger/internal/statistics/domain"
)

// buildEntries converts a flush into at most two entries: grid import as
// charging and grid export as discharging. Zero deltas produce no entry.
func (s *Service) buildEntries(flush metering.Flush, price *float64, existing []statistics.Entry) []statistics.Entry {
	out := make([]statistics.Entry, 0, 2)
	if flush.DeltaInputRaw > 0 {
		out = append(out, s.buildEntry(finance.EntryTypeCharging, flush.StartInputRaw, flush.EndInputRaw, flush, price, existing))
	}
	if flush.DeltaOutputRaw > 0 {
		out = append(out, s.buildEntry(finance.EntryTypeDischarging, flush.StartOutputRaw, flush.EndOutputRaw, flush, price, existing))
	}
	return out
}

func (s *Service) buildEntry(entryType finance.EntryType, startRaw, endRaw float64, flush metering.Flush, price *float64, existing []statistics.Entry) statistics.Entry {
	divisor := s.calc.ResolveDivisor(endRaw-startRaw, flush.DivisorRawPerKWh)
	energy := s.calc.CalculateEnergyAmount(finance.EnergyInput{
		Type:       entryType,
		StartMeter: finance.Float64(startRaw),
		EndMeter:   finance.Float64(endRaw),
		Divisor:    finance.Float64(divisor.Divisor),
	})

	audit := &statistics.EntryAudit{
		Method:             energy.Method,
		PrecisionLoss:      energy.Audit.LostPrecision(),
		ValidationWarnings: concat(divisor.Audit.Validation.Warnings, energy.Audit.Validation.Warnings),
		ValidationErrors:   concat(divisor.Audit.Validation.Errors, energy.Audit.Validation.Errors),
		RecoveryActions:    concat(divisor.Audit.RecoveryActions, energy.Audit.RecoveryActions),
	}
	if energy.Audit.Validation.IsValid {
		outlier := s.calc.DetectOutlier(math.Abs(energy.EnergyAmount), recentMagnitudes(existing, entryType, s.cfg.OutlierWindow))
		if outlier.IsOutlier {
			audit.OutlierDetected = true
			audit.ValidationWarnings = append(audit.ValidationWarnings,
				fmt.Sprintf("energy %.4f kWh deviates from recent mean %.4f (z=%.2f)", math.Abs(energy.EnergyAmount), outlier.Mean, outlier.ZScore))
		}
	}

	var entryPrice *float64
	if price != nil {
		entryPrice = finance.Float64(*price)
	}
	return statistics.Entry{
		Timestamp:        flush.EndTimestampSec,
		Type:             entryType,
		EnergyAmount:     energy.EnergyAmount,
		Duration:         flush.DurationMinutes,
		PriceAtTime:      entryPrice,
		StartEnergyMeter: finance.Float64(startRaw),
		EndEnergyMeter:   finance.Float64(endRaw),
		CalculationAudit: audit,
	}
}

// recentMagnitudes returns |energy| of the newest valid entries of one type.
func recentMagnitudes(entries []statistics.Entry, entryType finance.EntryType, window int) []float64 {
	out := make([]float64, 0, window)
	for i := len(entries) - 1; i >= 0 && len(out) < window; i-- {
		e := entries[i]
		if e.Type != entryType || e.EnergyAmount == 0 {
			continue
		}
		out = append(out, math.Abs(e.EnergyAmount))
	}
	return out
}

func concat(a, b []string) []string {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
