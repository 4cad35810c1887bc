package metering

import "time"

const (
	// DefaultFlushIntervalMinutes is the standard interval length.
	DefaultFlushIntervalMinutes = 60
	// FastFlushIntervalMinutes is used for faster reconciliation.
	FastFlushIntervalMinutes = 15
)

// Reason is the outcome of one accumulator transition.
type Reason string

const (
	ReasonInitialized    Reason = "initialized"
	ReasonOutOfOrder     Reason = "out_of_order"
	ReasonDivisorChanged Reason = "divisor_changed"
	ReasonCounterReset   Reason = "counter_reset"
	ReasonNoFlush        Reason = "no_flush"
	ReasonDeltaTrigger   Reason = "delta_trigger"
	ReasonTimeInterval   Reason = "time_interval"
	ReasonUTCDayBoundary Reason = "utc_day_boundary"
)

// Reasons lists every transition outcome.
func Reasons() []Reason {
	return []Reason{
		ReasonInitialized,
		ReasonOutOfOrder,
		ReasonDivisorChanged,
		ReasonCounterReset,
		ReasonNoFlush,
		ReasonDeltaTrigger,
		ReasonTimeInterval,
		ReasonUTCDayBoundary,
	}
}

// Flushed reports whether the transition closed an interval.
func (r Reason) Flushed() bool {
	switch r {
	case ReasonDeltaTrigger, ReasonTimeInterval, ReasonUTCDayBoundary:
		return true
	default:
		return false
	}
}

// Rejected reports whether the sample was dropped without touching the state.
func (r Reason) Rejected() bool {
	return r == ReasonOutOfOrder
}

// Reanchored reports whether the transition replaced the state from the sample.
func (r Reason) Reanchored() bool {
	switch r {
	case ReasonInitialized, ReasonDivisorChanged, ReasonCounterReset:
		return true
	default:
		return false
	}
}

// Sample is one reading of the cumulative import (input) and export (output) counters.
type Sample struct {
	TimestampSec     int64   `json:"timestampSec"`
	InputRaw         float64 `json:"inputRaw"`
	OutputRaw        float64 `json:"outputRaw"`
	DivisorRawPerKWh float64 `json:"divisorRawPerKwh"`
}

// Validate rejects samples that cannot be accumulated at all.
func (s Sample) Validate() error {
	if s.TimestampSec <= 0 {
		return ErrInvalidTimestamp
	}
	if !isFinite(s.InputRaw) || !isFinite(s.OutputRaw) {
		return ErrNonFiniteCounter
	}
	if !isFinite(s.DivisorRawPerKWh) || s.DivisorRawPerKWh <= 0 {
		return ErrInvalidDivisor
	}
	return nil
}

// State is the per-device accumulator. The Last* fields hold the last
// accepted sample, the AccStart* fields anchor the open interval and the
// Acc*DeltaRaw fields hold the raw deltas accumulated since the anchor.
type State struct {
	DivisorRawPerKWh float64 `json:"divisorRawPerKwh"`

	LastTimestampSec int64   `json:"lastTimestampSec"`
	LastInputRaw     float64 `json:"lastInputRaw"`
	LastOutputRaw    float64 `json:"lastOutputRaw"`

	AccStartTimestampSec int64   `json:"accStartTimestampSec"`
	AccStartInputRaw     float64 `json:"accStartInputRaw"`
	AccStartOutputRaw    float64 `json:"accStartOutputRaw"`

	AccInputDeltaRaw  float64 `json:"accInputDeltaRaw"`
	AccOutputDeltaRaw float64 `json:"accOutputDeltaRaw"`
}

// Validate checks the open-interval invariant.
func (s State) Validate() error {
	if s.LastInputRaw < s.AccStartInputRaw || s.LastOutputRaw < s.AccStartOutputRaw {
		return ErrStateInvariant
	}
	if s.LastTimestampSec < s.AccStartTimestampSec {
		return ErrStateInvariant
	}
	return nil
}

// Flush is the closed interval emitted once per flush.
type Flush struct {
	StartTimestampSec int64   `json:"startTimestampSec"`
	EndTimestampSec   int64   `json:"endTimestampSec"`
	DurationMinutes   float64 `json:"durationMinutes"`
	StartInputRaw     float64 `json:"startInputRaw"`
	EndInputRaw       float64 `json:"endInputRaw"`
	DeltaInputRaw     float64 `json:"deltaInputRaw"`
	StartOutputRaw    float64 `json:"startOutputRaw"`
	EndOutputRaw      float64 `json:"endOutputRaw"`
	DeltaOutputRaw    float64 `json:"deltaOutputRaw"`
	DivisorRawPerKWh  float64 `json:"divisorRawPerKwh"`
}

// Options tune when an open interval is flushed.
type Options struct {
	// FlushIntervalMinutes closes the interval after this long; <= 0 means 60.
	FlushIntervalMinutes float64 `yaml:"flush_interval_minutes"`
	// MinDeltaTriggerRaw closes the interval once either accumulated raw
	// delta reaches it; <= 0 disables the trigger.
	MinDeltaTriggerRaw float64 `yaml:"min_delta_trigger_raw"`
}

// DefaultOptions flushes hourly without a delta trigger.
func DefaultOptions() Options {
	return Options{FlushIntervalMinutes: DefaultFlushIntervalMinutes}
}

// FastReconciliationOptions flushes every 15 minutes.
func FastReconciliationOptions() Options {
	return Options{FlushIntervalMinutes: FastFlushIntervalMinutes}
}

func (o Options) flushInterval() float64 {
	if o.FlushIntervalMinutes <= 0 {
		return DefaultFlushIntervalMinutes
	}
	return o.FlushIntervalMinutes
}

// Result is the outcome of Update.
type Result struct {
	State  State  `json:"state"`
	Reason Reason `json:"reason"`
	Flush  *Flush `json:"flush,omitempty"`
}

// Update applies one sample to the previous state. prev is nil before the
// first sample of a device. The function is pure: prev is never modified.
func Update(prev *State, sample Sample, opts Options) Result {
	if prev == nil {
		return Result{State: anchorAt(sample), Reason: ReasonInitialized}
	}
	if sample.TimestampSec <= prev.LastTimestampSec {
		return Result{State: *prev, Reason: ReasonOutOfOrder}
	}
	if sample.DivisorRawPerKWh != prev.DivisorRawPerKWh {
		return Result{State: anchorAt(sample), Reason: ReasonDivisorChanged}
	}

	deltaInput := sample.InputRaw - prev.LastInputRaw
	deltaOutput := sample.OutputRaw - prev.LastOutputRaw
	if deltaInput < 0 || deltaOutput < 0 {
		return Result{State: anchorAt(sample), Reason: ReasonCounterReset}
	}

	next := *prev
	next.AccInputDeltaRaw += deltaInput
	next.AccOutputDeltaRaw += deltaOutput
	next.LastTimestampSec = sample.TimestampSec
	next.LastInputRaw = sample.InputRaw
	next.LastOutputRaw = sample.OutputRaw

	durationMinutes := float64(sample.TimestampSec-next.AccStartTimestampSec) / 60

	reason := ReasonNoFlush
	switch {
	case opts.MinDeltaTriggerRaw > 0 &&
		(next.AccInputDeltaRaw >= opts.MinDeltaTriggerRaw || next.AccOutputDeltaRaw >= opts.MinDeltaTriggerRaw):
		reason = ReasonDeltaTrigger
	case durationMinutes >= opts.flushInterval():
		reason = ReasonTimeInterval
	case utcDay(sample.TimestampSec) != utcDay(next.AccStartTimestampSec):
		reason = ReasonUTCDayBoundary
	}
	if reason == ReasonNoFlush {
		return Result{State: next, Reason: reason}
	}

	flush := &Flush{
		StartTimestampSec: next.AccStartTimestampSec,
		EndTimestampSec:   sample.TimestampSec,
		DurationMinutes:   durationMinutes,
		StartInputRaw:     next.AccStartInputRaw,
		EndInputRaw:       sample.InputRaw,
		DeltaInputRaw:     next.AccInputDeltaRaw,
		StartOutputRaw:    next.AccStartOutputRaw,
		EndOutputRaw:      sample.OutputRaw,
		DeltaOutputRaw:    next.AccOutputDeltaRaw,
		DivisorRawPerKWh:  next.DivisorRawPerKWh,
	}
	return Result{State: anchorAt(sample), Reason: reason, Flush: flush}
}

func anchorAt(sample Sample) State {
	return State{
		DivisorRawPerKWh:     sample.DivisorRawPerKWh,
		LastTimestampSec:     sample.TimestampSec,
		LastInputRaw:         sample.InputRaw,
		LastOutputRaw:        sample.OutputRaw,
		AccStartTimestampSec: sample.TimestampSec,
		AccStartInputRaw:     sample.InputRaw,
		AccStartOutputRaw:    sample.OutputRaw,
	}
}

func utcDay(tsSec int64) string {
	return time.Unix(tsSec, 0).UTC().Format("20060102")
}
