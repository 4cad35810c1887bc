package pricing

import (
	"math"
	"sort"
	"time"
)

const (
	DefaultWindow         = 72 * time.Hour
	DefaultDedupeInterval = time.Hour
	// DefaultMaxSnapshots is one snapshot per minute over the default window.
	DefaultMaxSnapshots = 4320
)

// Snapshot is the price per kWh in effect from TS (unix seconds) onwards.
type Snapshot struct {
	TS    int64   `json:"ts"`
	Price float64 `json:"price"`
}

// History is a time-ordered list of snapshots owned by one device.
type History []Snapshot

// Policy bounds a history.
type Policy struct {
	Window         time.Duration `yaml:"window"`
	DedupeInterval time.Duration `yaml:"dedupe_interval"`
	MaxSnapshots   int           `yaml:"max_snapshots"`
}

// DefaultPolicy keeps 72 hours and skips unchanged prices for an hour.
func DefaultPolicy() Policy {
	return Policy{
		Window:         DefaultWindow,
		DedupeInterval: DefaultDedupeInterval,
		MaxSnapshots:   DefaultMaxSnapshots,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.DedupeInterval < 0 {
		p.DedupeInterval = 0
	}
	if p.MaxSnapshots <= 0 {
		p.MaxSnapshots = def.MaxSnapshots
	}
	return p
}

// Record appends a snapshot under the default policy.
func (h History) Record(ts int64, price float64) History {
	return DefaultPolicy().Record(h, ts, price)
}

// Record returns a new history with the snapshot applied. Snapshots older
// than the newest one are ignored, a snapshot at the newest timestamp
// replaces its price and an unchanged price younger than the dedupe
// interval is skipped. The result is pruned to the window, keeping the
// snapshot in effect at the window start, and to the count cap.
func (p Policy) Record(h History, ts int64, price float64) History {
	p = p.withDefaults()
	out := h.Clone()
	if ts <= 0 || math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return out
	}
	if len(out) == 0 {
		return append(out, Snapshot{TS: ts, Price: price})
	}

	last := out[len(out)-1]
	switch {
	case ts < last.TS:
		return out
	case ts == last.TS:
		out[len(out)-1].Price = price
		return out
	case price == last.Price && time.Duration(ts-last.TS)*time.Second < p.DedupeInterval:
		return out
	}
	out = append(out, Snapshot{TS: ts, Price: price})
	return p.prune(out)
}

func (p Policy) prune(h History) History {
	newest := h[len(h)-1].TS
	windowStart := newest - int64(p.Window/time.Second)

	// first snapshot inside the window
	first := sort.Search(len(h), func(i int) bool { return h[i].TS >= windowStart })
	if first > 0 && (first == len(h) || h[first].TS > windowStart) {
		first--
	}
	if len(h)-first > p.MaxSnapshots {
		first = len(h) - p.MaxSnapshots
	}
	if first == 0 {
		return h
	}
	return append(History(nil), h[first:]...)
}

// Clone returns a copy that shares no memory with h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Latest returns the newest snapshot.
func (h History) Latest() (Snapshot, bool) {
	if len(h) == 0 {
		return Snapshot{}, false
	}
	return h[len(h)-1], true
}

// PriceAt returns the price in effect at ts. Before the first snapshot the
// first known price is used.
func (h History) PriceAt(ts int64) (float64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[h.indexAt(ts)].Price, true
}

// indexAt returns the last snapshot at or before ts, or 0 when none precedes it.
func (h History) indexAt(ts int64) int {
	i := sort.Search(len(h), func(i int) bool { return h[i].TS > ts })
	if i == 0 {
		return 0
	}
	return i - 1
}

// TimeWeightedPrice integrates the piecewise-constant price over
// [startSec, endSec) and divides by the interval length. The last known
// price covers any remainder after the newest snapshot.
func (h History) TimeWeightedPrice(startSec, endSec int64, fallback float64) float64 {
	if endSec <= startSec || len(h) == 0 {
		return fallback
	}

	var priceSeconds float64
	uniform := true
	firstPrice := h[h.indexAt(startSec)].Price
	cursor := startSec
	for i := h.indexAt(startSec); i < len(h) && cursor < endSec; i++ {
		segEnd := endSec
		if i+1 < len(h) && h[i+1].TS < endSec {
			segEnd = h[i+1].TS
		}
		if segEnd <= cursor {
			continue
		}
		if h[i].Price != firstPrice {
			uniform = false
		}
		priceSeconds += h[i].Price * float64(segEnd-cursor)
		cursor = segEnd
	}
	if uniform {
		return firstPrice
	}

	weighted := priceSeconds / float64(endSec-startSec)
	if math.IsNaN(weighted) || math.IsInf(weighted, 0) {
		return fallback
	}
	return weighted
}
