package metering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base is 2026-03-02 00:00:00 UTC so that a few hours of samples stay
// inside one calendar day.
var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Unix()

func sample(offsetSec int64, in, out float64) Sample {
	return Sample{TimestampSec: base + offsetSec, InputRaw: in, OutputRaw: out, DivisorRawPerKWh: 10}
}

func TestUpdate_Initialize(t *testing.T) {
	res := Update(nil, sample(0, 1000, 500), DefaultOptions())

	assert.Equal(t, ReasonInitialized, res.Reason)
	assert.Nil(t, res.Flush)
	assert.Equal(t, base, res.State.AccStartTimestampSec)
	assert.Equal(t, base, res.State.LastTimestampSec)
	assert.Equal(t, 1000.0, res.State.AccStartInputRaw)
	assert.Equal(t, 500.0, res.State.LastOutputRaw)
	assert.Zero(t, res.State.AccInputDeltaRaw)
	assert.NoError(t, res.State.Validate())
}

func TestUpdate_HourlyFlush(t *testing.T) {
	first := Update(nil, sample(0, 1000, 500), DefaultOptions())
	res := Update(&first.State, sample(3600, 1010, 500), DefaultOptions())

	require.NotNil(t, res.Flush)
	assert.Equal(t, ReasonTimeInterval, res.Reason)
	assert.Equal(t, 10.0, res.Flush.DeltaInputRaw)
	assert.Equal(t, 0.0, res.Flush.DeltaOutputRaw)
	assert.Equal(t, 60.0, res.Flush.DurationMinutes)
	assert.Equal(t, base, res.Flush.StartTimestampSec)
	assert.Equal(t, base+3600, res.Flush.EndTimestampSec)
	assert.Equal(t, 1000.0, res.Flush.StartInputRaw)
	assert.Equal(t, 1010.0, res.Flush.EndInputRaw)
	assert.Equal(t, 10.0, res.Flush.DivisorRawPerKWh)

	// post-flush state looks like a fresh initialization at the boundary
	assert.Equal(t, Update(nil, sample(3600, 1010, 500), DefaultOptions()).State, res.State)
}

func TestUpdate_MissedSample(t *testing.T) {
	first := Update(nil, sample(0, 1000, 100), DefaultOptions())
	res := Update(&first.State, sample(7200, 1030, 110), DefaultOptions())

	require.NotNil(t, res.Flush)
	assert.Equal(t, 30.0, res.Flush.DeltaInputRaw)
	assert.Equal(t, 10.0, res.Flush.DeltaOutputRaw)
	assert.Equal(t, 120.0, res.Flush.DurationMinutes)
}

func TestUpdate_CounterReset(t *testing.T) {
	state := Update(nil, sample(0, 5000, 1200), DefaultOptions()).State
	res := Update(&state, sample(300, 5020, 1210), DefaultOptions())
	require.Equal(t, ReasonNoFlush, res.Reason)
	state = res.State

	res = Update(&state, sample(600, 5, 2), DefaultOptions())
	assert.Equal(t, ReasonCounterReset, res.Reason)
	assert.Nil(t, res.Flush)
	assert.Equal(t, 5.0, res.State.AccStartInputRaw)
	assert.Equal(t, 2.0, res.State.AccStartOutputRaw)
	assert.Equal(t, 5.0, res.State.LastInputRaw)
	assert.Zero(t, res.State.AccInputDeltaRaw)
	assert.Zero(t, res.State.AccOutputDeltaRaw)
}

func TestUpdate_OnlyOneCounterDecreasing(t *testing.T) {
	state := Update(nil, sample(0, 100, 100), DefaultOptions()).State
	res := Update(&state, sample(60, 120, 99), DefaultOptions())
	assert.Equal(t, ReasonCounterReset, res.Reason)
}

func TestUpdate_OutOfOrderLeavesStateUntouched(t *testing.T) {
	state := Update(nil, sample(600, 100, 100), DefaultOptions()).State
	before := state

	for _, s := range []Sample{sample(600, 200, 200), sample(300, 200, 200)} {
		res := Update(&state, s, DefaultOptions())
		assert.Equal(t, ReasonOutOfOrder, res.Reason)
		assert.True(t, res.Reason.Rejected())
		assert.Nil(t, res.Flush)
		assert.Equal(t, before, res.State)
	}
	assert.Equal(t, before, state, "caller state must not be mutated")
}

func TestUpdate_DivisorChange(t *testing.T) {
	state := Update(nil, sample(0, 100, 100), DefaultOptions()).State
	s := sample(60, 5000, 5000)
	s.DivisorRawPerKWh = 100

	res := Update(&state, s, DefaultOptions())
	assert.Equal(t, ReasonDivisorChanged, res.Reason)
	assert.Nil(t, res.Flush)
	assert.Equal(t, 100.0, res.State.DivisorRawPerKWh)
	assert.Equal(t, 5000.0, res.State.AccStartInputRaw)
}

func TestUpdate_DivisorChangeCheckedBeforeReset(t *testing.T) {
	state := Update(nil, sample(0, 100, 100), DefaultOptions()).State
	s := sample(60, 1, 1)
	s.DivisorRawPerKWh = 1000

	assert.Equal(t, ReasonDivisorChanged, Update(&state, s, DefaultOptions()).Reason)
}

func TestUpdate_DeltaTrigger(t *testing.T) {
	opts := Options{FlushIntervalMinutes: 60, MinDeltaTriggerRaw: 50}
	state := Update(nil, sample(0, 0, 0), opts).State

	res := Update(&state, sample(60, 30, 0), opts)
	require.Equal(t, ReasonNoFlush, res.Reason)

	res = Update(&res.State, sample(120, 30, 50), opts)
	require.Equal(t, ReasonDeltaTrigger, res.Reason)
	assert.Equal(t, 30.0, res.Flush.DeltaInputRaw)
	assert.Equal(t, 50.0, res.Flush.DeltaOutputRaw)
	assert.Equal(t, 2.0, res.Flush.DurationMinutes)
}

func TestUpdate_TriggerPriority(t *testing.T) {
	opts := Options{FlushIntervalMinutes: 60, MinDeltaTriggerRaw: 5}
	late := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC).Unix()
	state := Update(nil, Sample{TimestampSec: late, InputRaw: 0, OutputRaw: 0, DivisorRawPerKWh: 10}, opts).State

	// all three conditions hold: delta, interval and day boundary
	all := Sample{TimestampSec: late + 7200, InputRaw: 10, OutputRaw: 0, DivisorRawPerKWh: 10}
	assert.Equal(t, ReasonDeltaTrigger, Update(&state, all, opts).Reason)

	// interval and day boundary
	small := all
	small.InputRaw = 1
	assert.Equal(t, ReasonTimeInterval, Update(&state, small, opts).Reason)

	// only the day boundary
	dayOnly := Sample{TimestampSec: late + 45*60, InputRaw: 1, OutputRaw: 0, DivisorRawPerKWh: 10}
	res := Update(&state, dayOnly, opts)
	assert.Equal(t, ReasonUTCDayBoundary, res.Reason)
	require.NotNil(t, res.Flush)
	assert.Equal(t, 45.0, res.Flush.DurationMinutes)
}

func TestUpdate_FastReconciliation(t *testing.T) {
	opts := FastReconciliationOptions()
	state := Update(nil, sample(0, 0, 0), opts).State

	res := Update(&state, sample(14*60, 1, 0), opts)
	assert.Equal(t, ReasonNoFlush, res.Reason)
	res = Update(&res.State, sample(15*60, 2, 0), opts)
	assert.Equal(t, ReasonTimeInterval, res.Reason)
}

func TestUpdate_ZeroOptionsUseDefaults(t *testing.T) {
	state := Update(nil, sample(0, 0, 0), Options{}).State

	res := Update(&state, sample(59*60, 1000000, 0), Options{})
	assert.Equal(t, ReasonNoFlush, res.Reason, "trigger disabled and interval defaults to 60")
	res = Update(&res.State, sample(60*60, 1000001, 0), Options{})
	assert.Equal(t, ReasonTimeInterval, res.Reason)
}

func TestUpdate_MonotonicityAndConservation(t *testing.T) {
	opts := Options{FlushIntervalMinutes: 15}
	in, out := 1000.0, 400.0
	state := Update(nil, sample(0, in, out), opts).State

	var flushedIn, flushedOut float64
	prevAccIn, prevAccOut := 0.0, 0.0
	for i := int64(1); i <= 40; i++ {
		in += float64(i % 4)
		out += float64(i % 3)
		res := Update(&state, sample(i*5*60, in, out), opts)
		require.False(t, res.Reason.Reanchored())
		require.NoError(t, res.State.Validate())

		if res.Flush != nil {
			flushedIn += res.Flush.DeltaInputRaw
			flushedOut += res.Flush.DeltaOutputRaw
			prevAccIn, prevAccOut = 0, 0
		} else {
			assert.GreaterOrEqual(t, res.State.AccInputDeltaRaw, prevAccIn)
			assert.GreaterOrEqual(t, res.State.AccOutputDeltaRaw, prevAccOut)
			prevAccIn, prevAccOut = res.State.AccInputDeltaRaw, res.State.AccOutputDeltaRaw
		}
		state = res.State
	}

	// close the tail so every sample is accounted for
	res := Update(&state, sample(41*5*60+3600, in, out), opts)
	require.NotNil(t, res.Flush)
	flushedIn += res.Flush.DeltaInputRaw
	flushedOut += res.Flush.DeltaOutputRaw

	assert.Equal(t, in-1000, flushedIn)
	assert.Equal(t, out-400, flushedOut)
}

func TestSample_Validate(t *testing.T) {
	assert.NoError(t, sample(0, 1, 1).Validate())

	bad := sample(0, 1, 1)
	bad.TimestampSec = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTimestamp)

	bad = sample(0, 1, 1)
	bad.DivisorRawPerKWh = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidDivisor)
}

func TestReason_Flushed(t *testing.T) {
	flushed := map[Reason]bool{
		ReasonDeltaTrigger:   true,
		ReasonTimeInterval:   true,
		ReasonUTCDayBoundary: true,
	}
	for _, r := range Reasons() {
		assert.Equal(t, flushed[r], r.Flushed(), string(r))
	}
}
