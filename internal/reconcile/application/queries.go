package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"energy-ledger/internal/finance/domain"
	"energy-ledger/internal/observability/metrics"
	"energy-ledger/internal/pricing/domain"
	"energy-ledger/internal/statistics/domain"
)

// PriceResult is the outcome of a price submission.
type PriceResult struct {
	DeviceID   string                   `json:"deviceId"`
	Recorded   bool                     `json:"recorded"`
	Validation finance.ValidationResult `json:"validation"`
	Snapshots  int                      `json:"snapshots"`
	Latest     *pricing.Snapshot        `json:"latest,omitempty"`
}

// RecordPrice adds a price snapshot to the device history. Invalid prices
// are reported in the result and not stored.
func (s *Service) RecordPrice(ctx context.Context, deviceID string, ts int64, price float64) (PriceResult, error) {
	if deviceID == "" {
		return PriceResult{}, ErrEmptyDeviceID
	}
	res := PriceResult{DeviceID: deviceID, Validation: s.calc.ValidateEnergyPrice(price)}
	res.Validation.Merge(s.calc.ValidateTimestamp(float64(ts)))
	if !res.Validation.IsValid {
		metrics.IncPriceSnapshot("rejected")
		return res, nil
	}

	release, err := s.locks.Acquire(ctx, deviceID)
	if err != nil {
		return res, fmt.Errorf("reconcile: acquire lock: %w", err)
	}
	defer release()

	history, err := s.prices.Load(ctx, deviceID)
	if err != nil {
		return res, fmt.Errorf("reconcile: load price history: %w", err)
	}
	updated := s.cfg.Prices.Record(history, ts, price)
	res.Snapshots = len(updated)
	if latest, ok := updated.Latest(); ok {
		res.Latest = &latest
	}
	if !historyChanged(history, updated) {
		metrics.IncPriceSnapshot("skipped")
		return res, nil
	}
	if err := s.prices.Save(ctx, deviceID, updated); err != nil {
		return res, fmt.Errorf("reconcile: save price history: %w", err)
	}
	res.Recorded = true
	metrics.IncPriceSnapshot("recorded")
	s.publish(ctx, &PriceRecorded{DeviceID: deviceID, Snapshot: *res.Latest, At: s.clock.Now().UTC()})
	return res, nil
}

// PriceHistory returns the stored price history of a device.
func (s *Service) PriceHistory(ctx context.Context, deviceID string) (pricing.History, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	return s.prices.Load(ctx, deviceID)
}

// Entries returns the retained entries of a device.
func (s *Service) Entries(ctx context.Context, deviceID string) ([]statistics.Entry, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	entries, err := s.entries.Load(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load entries: %w", err)
	}
	return entries, nil
}

// DailyStats aggregates the retained entries per day.
func (s *Service) DailyStats(ctx context.Context, deviceID string) ([]statistics.DailyStats, error) {
	entries, err := s.Entries(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return s.agg.AggregateDailyStats(entries), nil
}

// Breakdown returns today's cost and savings split.
func (s *Service) Breakdown(ctx context.Context, deviceID string) (statistics.Breakdown, error) {
	entries, err := s.Entries(ctx, deviceID)
	if err != nil {
		return statistics.Breakdown{}, err
	}
	return s.agg.CalculateDetailedBreakdown(entries), nil
}

// Summary returns the whole-list summary with its audit.
func (s *Service) Summary(ctx context.Context, deviceID string) (statistics.SummaryResult, error) {
	entries, err := s.Entries(ctx, deviceID)
	if err != nil {
		return statistics.SummaryResult{}, err
	}
	return s.agg.GetStatisticsSummary(entries), nil
}

// AuditTrail re-validates the entries in [from, to].
func (s *Service) AuditTrail(ctx context.Context, deviceID string, from, to time.Time) ([]statistics.EntryVerification, error) {
	if to.Before(from) {
		return nil, statistics.ErrInvalidPeriod
	}
	entries, err := s.Entries(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return s.agg.GetCalculationAuditTrail(entries, from, to), nil
}

// CalculatorAudit returns the calculator ring buffer, oldest first.
func (s *Service) CalculatorAudit() []finance.CalculationAudit {
	return s.calc.AuditTrail()
}

// Cleanup applies the retention policy to the stored entries of a device.
func (s *Service) Cleanup(ctx context.Context, deviceID string) (statistics.CleanupReport, error) {
	if deviceID == "" {
		return statistics.CleanupReport{}, ErrEmptyDeviceID
	}
	release, err := s.locks.Acquire(ctx, deviceID)
	if err != nil {
		return statistics.CleanupReport{}, fmt.Errorf("reconcile: acquire lock: %w", err)
	}
	defer release()

	entries, err := s.entries.Load(ctx, deviceID)
	if err != nil {
		return statistics.CleanupReport{}, fmt.Errorf("reconcile: load entries: %w", err)
	}
	res := s.agg.CleanupOldEntriesWithReport(entries, s.cfg.Retention)
	if res.CleanupReport.Removed() == 0 {
		return res.CleanupReport, nil
	}
	if err := s.entries.Save(ctx, deviceID, res.CleanedEntries); err != nil {
		return statistics.CleanupReport{}, fmt.Errorf("reconcile: save entries: %w", err)
	}
	metrics.AddRetentionRemoved(metrics.RetentionFilterAge, res.CleanupReport.RemovedByAge)
	metrics.AddRetentionRemoved(metrics.RetentionFilterCount, res.CleanupReport.RemovedByCount)
	metrics.AddRetentionRemoved(metrics.RetentionFilterMemory, res.CleanupReport.RemovedByMemory)
	s.logger.Info("entries cleaned up",
		zap.String("device_id", deviceID),
		zap.Int("removed", res.CleanupReport.Removed()),
		zap.Int("remaining", res.CleanupReport.FinalCount),
	)
	return res.CleanupReport, nil
}
