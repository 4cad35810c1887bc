package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"energy-ledger/internal/finance/domain"
	"energy-ledger/internal/metering/domain"
	"energy-ledger/internal/observability/metrics"
	"energy-ledger/internal/observability/trace"
	"energy-ledger/internal/pricing/domain"
	"energy-ledger/internal/reconcile/application/eventbus"
	"energy-ledger/internal/statistics/domain"
)

// DefaultOutlierWindow is how many recent entries of the same type feed the z-score.
const DefaultOutlierWindow = 48

// Config tunes the reconciliation flow.
type Config struct {
	Accumulator metering.Options
	Retention   statistics.RetentionPolicy
	Prices      pricing.Policy
	// FallbackPrice prices a flush when the device has no price history.
	FallbackPrice *float64
	OutlierWindow int
}

// DefaultConfig flushes hourly and keeps 30 days of entries.
func DefaultConfig() Config {
	return Config{
		Accumulator:   metering.DefaultOptions(),
		Retention:     statistics.DefaultRetentionPolicy(),
		Prices:        pricing.DefaultPolicy(),
		OutlierWindow: DefaultOutlierWindow,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces the default flow configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.OutlierWindow <= 0 {
			cfg.OutlierWindow = DefaultOutlierWindow
		}
		s.cfg = cfg
	}
}

// WithPriceSource refreshes the device price history from src on every sample.
func WithPriceSource(src pricing.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithEventBus publishes FlushClosed and PriceRecorded events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocks shares a lock table with other writers.
func WithLocks(locks *DeviceLocks) Option {
	return func(s *Service) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// Service is the caller around the pure engine: it owns the per-device
// lock, loads and persists state, prices flushed intervals and keeps the
// retained entry list.
type Service struct {
	states  metering.StateRepository
	entries statistics.EntryRepository
	prices  pricing.HistoryRepository
	calc    *finance.Calculator
	agg     *statistics.Aggregator
	source  pricing.Source
	bus     eventbus.EventBus
	locks   *DeviceLocks
	logger  *zap.Logger
	clock   finance.Clock
	cfg     Config
}

// NewService constructs a Service.
func NewService(
	states metering.StateRepository,
	entries statistics.EntryRepository,
	prices pricing.HistoryRepository,
	calc *finance.Calculator,
	agg *statistics.Aggregator,
	opts ...Option,
) (*Service, error) {
	if states == nil || entries == nil || prices == nil || calc == nil || agg == nil {
		return nil, ErrNilDependency
	}
	s := &Service{
		states:  states,
		entries: entries,
		prices:  prices,
		calc:    calc,
		agg:     agg,
		locks:   NewDeviceLocks(),
		logger:  zap.NewNop(),
		clock:   calc.Clock(),
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IngestResult is the outcome of one sample.
type IngestResult struct {
	DeviceID   string                    `json:"deviceId"`
	Reason     metering.Reason           `json:"reason,omitempty"`
	Accepted   bool                      `json:"accepted"`
	Validation finance.ValidationResult  `json:"validation"`
	Flush      *metering.Flush           `json:"flush,omitempty"`
	Entries    []statistics.Entry        `json:"entries,omitempty"`
	Cleanup    *statistics.CleanupReport `json:"cleanup,omitempty"`
}

// IngestSample runs one sample through the accumulator under the device
// lock. On a flush the interval is priced, converted to entries and
// appended to the retained list before the lock is released.
func (s *Service) IngestSample(ctx context.Context, deviceID string, sample metering.Sample) (IngestResult, error) {
	ctx, span := trace.StartSpan(ctx, "reconcile.IngestSample")
	defer span.End()
	span.SetAttributes(attribute.String("device_id", deviceID))

	start := time.Now()
	res, err := s.ingest(ctx, deviceID, sample)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		span.RecordError(err)
	}
	metrics.ObserveIngest(result, time.Since(start))
	if res.Reason != "" {
		span.SetAttributes(attribute.String("reason", string(res.Reason)))
	}
	return res, err
}

func (s *Service) ingest(ctx context.Context, deviceID string, sample metering.Sample) (IngestResult, error) {
	if deviceID == "" {
		metrics.IncIngestError("empty_device_id")
		return IngestResult{}, ErrEmptyDeviceID
	}
	if err := sample.Validate(); err != nil {
		metrics.IncIngestError("invalid_sample")
		return IngestResult{DeviceID: deviceID}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	tsCheck := s.calc.ValidateTimestamp(float64(sample.TimestampSec))
	if !tsCheck.IsValid {
		metrics.IncIngestError("invalid_timestamp")
		s.logger.Warn("sample timestamp rejected",
			zap.String("device_id", deviceID),
			zap.Int64("ts", sample.TimestampSec),
			zap.Strings("errors", tsCheck.Errors),
		)
		return IngestResult{DeviceID: deviceID, Validation: tsCheck}, nil
	}

	waitStart := time.Now()
	release, err := s.locks.Acquire(ctx, deviceID)
	if err != nil {
		return IngestResult{DeviceID: deviceID}, fmt.Errorf("reconcile: acquire lock: %w", err)
	}
	defer release()
	metrics.ObserveLockWait(time.Since(waitStart))

	prev, err := s.states.Load(ctx, deviceID)
	if errors.Is(err, metering.ErrStateNotFound) {
		prev, err = nil, nil
	}
	if err != nil {
		return IngestResult{DeviceID: deviceID}, fmt.Errorf("reconcile: load state: %w", err)
	}
	history, err := s.prices.Load(ctx, deviceID)
	if err != nil {
		return IngestResult{DeviceID: deviceID}, fmt.Errorf("reconcile: load price history: %w", err)
	}
	history, priceChanged := s.refreshPrice(ctx, deviceID, history, sample.TimestampSec)

	out := metering.Update(prev, sample, s.cfg.Accumulator)
	metrics.IncTransition(string(out.Reason))
	res := IngestResult{
		DeviceID:   deviceID,
		Reason:     out.Reason,
		Accepted:   !out.Reason.Rejected(),
		Validation: tsCheck,
		Flush:      out.Flush,
	}

	if out.Reason.Rejected() {
		s.logger.Debug("sample out of order",
			zap.String("device_id", deviceID),
			zap.Int64("ts", sample.TimestampSec),
			zap.Int64("last_ts", prev.LastTimestampSec),
		)
	} else {
		if prev != nil && out.Reason.Reanchored() {
			s.logger.Info("accumulator re-anchored",
				zap.String("device_id", deviceID),
				zap.String("reason", string(out.Reason)),
				zap.Float64("input_raw", sample.InputRaw),
				zap.Float64("output_raw", sample.OutputRaw),
			)
		}
		if err := s.states.Save(ctx, deviceID, out.State); err != nil {
			return res, fmt.Errorf("reconcile: save state: %w", err)
		}
	}

	var evt *FlushClosed
	if out.Flush != nil {
		evt, err = s.recordFlush(ctx, deviceID, out.Reason, *out.Flush, history, &res)
		if err != nil {
			return res, err
		}
	}

	if priceChanged {
		if err := s.prices.Save(ctx, deviceID, history); err != nil {
			return res, fmt.Errorf("reconcile: save price history: %w", err)
		}
	}
	if evt != nil {
		s.publish(ctx, evt)
	}
	return res, nil
}

func (s *Service) recordFlush(ctx context.Context, deviceID string, reason metering.Reason, flush metering.Flush, history pricing.History, res *IngestResult) (*FlushClosed, error) {
	existing, err := s.entries.Load(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load entries: %w", err)
	}

	price := s.intervalPrice(history, flush)
	built := s.buildEntries(flush, price, existing)
	cleanup := s.agg.AppendEntries(existing, s.cfg.Retention, built...)
	if err := s.entries.Save(ctx, deviceID, cleanup.CleanedEntries); err != nil {
		return nil, fmt.Errorf("reconcile: save entries: %w", err)
	}

	for _, e := range built {
		metrics.IncEntryRecorded(string(e.Type), e.EnergyAmount != 0)
	}
	report := cleanup.CleanupReport
	metrics.AddRetentionRemoved(metrics.RetentionFilterAge, report.RemovedByAge)
	metrics.AddRetentionRemoved(metrics.RetentionFilterCount, report.RemovedByCount)
	metrics.AddRetentionRemoved(metrics.RetentionFilterMemory, report.RemovedByMemory)
	metrics.AddFlushedEnergy(metrics.DirectionImport, flush.DeltaInputRaw/flush.DivisorRawPerKWh)
	metrics.AddFlushedEnergy(metrics.DirectionExport, flush.DeltaOutputRaw/flush.DivisorRawPerKWh)

	s.logger.Info("interval flushed",
		zap.String("device_id", deviceID),
		zap.String("reason", string(reason)),
		zap.Int64("start", flush.StartTimestampSec),
		zap.Int64("end", flush.EndTimestampSec),
		zap.Float64("delta_input_raw", flush.DeltaInputRaw),
		zap.Float64("delta_output_raw", flush.DeltaOutputRaw),
		zap.Int("entries", len(built)),
		zap.Int("retention_removed", report.Removed()),
	)

	res.Entries = built
	res.Cleanup = &report
	return &FlushClosed{
		DeviceID: deviceID,
		Reason:   reason,
		Flush:    flush,
		Price:    price,
		Entries:  built,
		At:       s.clock.Now().UTC(),
	}, nil
}

// refreshPrice records the source price at ts into the history.
func (s *Service) refreshPrice(ctx context.Context, deviceID string, history pricing.History, ts int64) (pricing.History, bool) {
	if s.source == nil {
		return history, false
	}
	price, err := s.source.PriceAt(ctx, deviceID, time.Unix(ts, 0).UTC())
	if err != nil {
		s.logger.Warn("price source lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		return history, false
	}
	updated := s.cfg.Prices.Record(history, ts, price)
	return updated, historyChanged(history, updated)
}

func (s *Service) intervalPrice(history pricing.History, flush metering.Flush) *float64 {
	if len(history) == 0 {
		if s.cfg.FallbackPrice == nil {
			return nil
		}
		return finance.Float64(*s.cfg.FallbackPrice)
	}
	var fallback float64
	if s.cfg.FallbackPrice != nil {
		fallback = *s.cfg.FallbackPrice
	}
	return finance.Float64(history.TimeWeightedPrice(flush.StartTimestampSec, flush.EndTimestampSec, fallback))
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event", eventbus.EventType(event)), zap.Error(err))
	}
}

func historyChanged(before, after pricing.History) bool {
	if len(before) != len(after) {
		return true
	}
	b, okB := before.Latest()
	a, okA := after.Latest()
	return okA != okB || a != b
}
