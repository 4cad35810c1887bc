package statistics

import (
	"energy-ledger/internal/finance/domain"
)

// EntryAudit is the per-entry summary of the calculation that produced it.
type EntryAudit struct {
	Method             string   `json:"method"`
	PrecisionLoss      bool     `json:"precisionLoss"`
	ValidationWarnings []string `json:"validationWarnings,omitempty"`
	ValidationErrors   []string `json:"validationErrors,omitempty"`
	OutlierDetected    bool     `json:"outlierDetected"`
	RecoveryActions    []string `json:"recoveryActions,omitempty"`
}

// Entry is one priced energy event. EnergyAmount is signed kWh: positive
// for charging, negative for discharging. Timestamp is the interval end in
// unix seconds and Duration is in minutes.
type Entry struct {
	Timestamp        int64             `json:"timestamp"`
	Type             finance.EntryType `json:"type"`
	EnergyAmount     float64           `json:"energyAmount"`
	Duration         float64           `json:"duration"`
	PriceAtTime      *float64          `json:"priceAtTime,omitempty"`
	StartEnergyMeter *float64          `json:"startEnergyMeter,omitempty"`
	EndEnergyMeter   *float64          `json:"endEnergyMeter,omitempty"`
	CalculationAudit *EntryAudit       `json:"calculationAudit,omitempty"`
}

// AuditInfo tallies audit findings.
type AuditInfo struct {
	ValidationFailures int `json:"validationFailures"`
	PrecisionLosses    int `json:"precisionLosses"`
	OutliersDetected   int `json:"outliersDetected"`
	RecoveryActions    int `json:"recoveryActions"`
	UnpricedEntries    int `json:"unpricedEntries"`
}

func (a *AuditInfo) add(other AuditInfo) {
	a.ValidationFailures += other.ValidationFailures
	a.PrecisionLosses += other.PrecisionLosses
	a.OutliersDetected += other.OutliersDetected
	a.RecoveryActions += other.RecoveryActions
	a.UnpricedEntries += other.UnpricedEntries
}

func (a *AuditInfo) note(entry Entry) {
	if entry.PriceAtTime == nil {
		a.UnpricedEntries++
	}
	audit := entry.CalculationAudit
	if audit == nil {
		return
	}
	if len(audit.ValidationErrors) > 0 {
		a.ValidationFailures++
	}
	if audit.PrecisionLoss {
		a.PrecisionLosses++
	}
	if audit.OutlierDetected {
		a.OutliersDetected++
	}
	a.RecoveryActions += len(audit.RecoveryActions)
}

// DailyStats is derived from the entry list and never stored on its own.
type DailyStats struct {
	Date                 string    `json:"date"`
	TotalChargeEnergy    float64   `json:"totalChargeEnergy"`
	TotalDischargeEnergy float64   `json:"totalDischargeEnergy"`
	TotalProfit          float64   `json:"totalProfit"`
	TotalSavings         float64   `json:"totalSavings"`
	Events               []Entry   `json:"events"`
	AuditInfo            AuditInfo `json:"auditInfo"`
}

// Breakdown is the cost and savings split of one day.
type Breakdown struct {
	Date            string  `json:"date"`
	ChargeEnergy    float64 `json:"chargeEnergy"`
	DischargeEnergy float64 `json:"dischargeEnergy"`
	Savings         float64 `json:"savings"`
	Cost            float64 `json:"cost"`
	NetProfit       float64 `json:"netProfit"`
}
