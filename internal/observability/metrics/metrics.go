package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "energy_ledger_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	accumulatorTransitions *prometheus.CounterVec
	flushedEnergy          *prometheus.CounterVec
	lockWait               prometheus.Histogram

	entriesRecorded  *prometheus.CounterVec
	retentionRemoved *prometheus.CounterVec
	priceSnapshots   *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers the collectors and, with a database, the store gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingested samples by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Sample ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		accumulatorTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "accumulator_transitions_total",
				Help: "Accumulator transitions by reason",
			},
			[]string{"reason"},
		)
		flushedEnergy = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "flushed_energy_kwh_total",
				Help: "Energy closed by flushes in kWh by direction",
			},
			[]string{"direction"},
		)
		lockWait = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "device_lock_wait_seconds",
				Help:    "Time spent waiting for a device lock",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
		)

		entriesRecorded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "entries_recorded_total",
				Help: "Statistics entries recorded by type and validity",
			},
			[]string{"type", "valid"},
		)
		retentionRemoved = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "retention_removed_total",
				Help: "Entries removed by retention filter",
			},
			[]string{"filter"},
		)
		priceSnapshots = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "price_snapshots_total",
				Help: "Price snapshot submissions by outcome",
			},
			[]string{"outcome"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			accumulatorTransitions,
			flushedEnergy,
			lockWait,
			entriesRecorded,
			retentionRemoved,
			priceSnapshots,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records sample ingest duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments the ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncTransition counts one accumulator transition.
func IncTransition(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if accumulatorTransitions != nil {
		accumulatorTransitions.WithLabelValues(reason).Inc()
	}
}

// AddFlushedEnergy adds flushed kWh for a direction (import or export).
func AddFlushedEnergy(direction string, kwh float64) {
	if kwh <= 0 {
		return
	}
	if flushedEnergy != nil {
		flushedEnergy.WithLabelValues(direction).Add(kwh)
	}
}

// ObserveLockWait records how long a device lock was awaited.
func ObserveLockWait(wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	if lockWait != nil {
		lockWait.Observe(wait.Seconds())
	}
}

// IncEntryRecorded counts a recorded statistics entry.
func IncEntryRecorded(entryType string, valid bool) {
	label := "true"
	if !valid {
		label = "false"
	}
	if entriesRecorded != nil {
		entriesRecorded.WithLabelValues(entryType, label).Inc()
	}
}

// AddRetentionRemoved adds removed entries for a retention filter.
func AddRetentionRemoved(filter string, count int) {
	if count <= 0 {
		return
	}
	if retentionRemoved != nil {
		retentionRemoved.WithLabelValues(filter).Add(float64(count))
	}
}

// IncPriceSnapshot counts a price submission outcome.
func IncPriceSnapshot(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if priceSnapshots != nil {
		priceSnapshots.WithLabelValues(outcome).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	RetentionFilterAge    = "age"
	RetentionFilterCount  = "count"
	RetentionFilterMemory = "memory"

	DirectionImport = "import"
	DirectionExport = "export"
)
