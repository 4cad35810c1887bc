package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t0 = int64(1_772_000_000)

func TestRecord_AppendsAndDedupes(t *testing.T) {
	var h History
	h = h.Record(t0, 0.30)
	h = h.Record(t0+600, 0.30)
	require.Len(t, h, 1, "unchanged price within an hour is skipped")

	h = h.Record(t0+3600, 0.30)
	require.Len(t, h, 2, "unchanged price after an hour is kept")

	h = h.Record(t0+3700, 0.25)
	require.Len(t, h, 3)
	assert.Equal(t, Snapshot{TS: t0 + 3700, Price: 0.25}, h[2])
}

func TestRecord_OrderingRules(t *testing.T) {
	h := History{}.Record(t0, 0.30).Record(t0+60, 0.40)

	same := h.Record(t0+60, 0.45)
	require.Len(t, same, 2)
	assert.Equal(t, 0.45, same[1].Price)
	assert.Equal(t, 0.40, h[1].Price, "receiver is not modified")

	older := h.Record(t0+30, 0.99)
	assert.Equal(t, h, older)

	assert.Equal(t, h, h.Record(t0+120, -1))
}

func TestRecord_PrunesToWindowKeepingPriceInEffect(t *testing.T) {
	h := History{}.
		Record(t0, 0.10).
		Record(t0+3600, 0.20).
		Record(t0+7200, 0.30)

	newest := t0 + 7200 + int64(DefaultWindow/time.Second) + 1800
	h = h.Record(newest, 0.40)

	// window starts 1800s after the 0.30 snapshot, which stays as the price in effect
	require.Len(t, h, 2)
	assert.Equal(t, 0.30, h[0].Price)
	assert.Equal(t, 0.40, h[1].Price)
}

func TestRecord_CountCap(t *testing.T) {
	p := Policy{Window: 24 * time.Hour, MaxSnapshots: 5}
	var h History
	for i := int64(0); i < 20; i++ {
		h = p.Record(h, t0+i*60, float64(i))
	}
	require.Len(t, h, 5)
	assert.Equal(t, 15.0, h[0].Price)
	assert.Equal(t, 19.0, h[4].Price)
}

func TestTimeWeightedPrice_SingleSnapshotIsExact(t *testing.T) {
	h := History{{TS: t0, Price: 0.1234567}}
	assert.Equal(t, 0.1234567, h.TimeWeightedPrice(t0+10, t0+3610, 9))
	assert.Equal(t, 0.1234567, h.TimeWeightedPrice(t0-100, t0+7, 9), "first snapshot is used best effort")
}

func TestTimeWeightedPrice_Segments(t *testing.T) {
	h := History{
		{TS: t0, Price: 0.20},
		{TS: t0 + 1800, Price: 0.40},
		{TS: t0 + 2700, Price: 0.10},
	}

	// 1800s at 0.20, 900s at 0.40, 900s at 0.10
	got := h.TimeWeightedPrice(t0, t0+3600, 0)
	assert.InDelta(t, (0.20*1800+0.40*900+0.10*900)/3600, got, 1e-12)

	// interval starting mid-segment
	got = h.TimeWeightedPrice(t0+900, t0+2700, 0)
	assert.InDelta(t, (0.20*900+0.40*900)/1800, got, 1e-12)

	// remainder after the newest snapshot extends the last price
	got = h.TimeWeightedPrice(t0+2700, t0+9000, 0)
	assert.Equal(t, 0.10, got)
}

func TestTimeWeightedPrice_Fallback(t *testing.T) {
	h := History{{TS: t0, Price: 0.2}}
	assert.Equal(t, 0.5, History(nil).TimeWeightedPrice(t0, t0+60, 0.5))
	assert.Equal(t, 0.5, h.TimeWeightedPrice(t0+60, t0+60, 0.5))
	assert.Equal(t, 0.5, h.TimeWeightedPrice(t0+60, t0, 0.5))
}

func TestPriceAt(t *testing.T) {
	h := History{{TS: t0, Price: 0.2}, {TS: t0 + 100, Price: 0.3}}

	p, ok := h.PriceAt(t0 + 99)
	assert.True(t, ok)
	assert.Equal(t, 0.2, p)

	p, _ = h.PriceAt(t0 + 100)
	assert.Equal(t, 0.3, p)

	p, _ = h.PriceAt(t0 - 1)
	assert.Equal(t, 0.2, p)

	_, ok = History(nil).PriceAt(t0)
	assert.False(t, ok)
}
