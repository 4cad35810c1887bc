package application

import (
	"time"

	"energy-ledger/internal/metering/domain"
	"energy-ledger/internal/pricing/domain"
	"energy-ledger/internal/statistics/domain"
)

// FlushClosed is published after a flushed interval and its entries are persisted.
type FlushClosed struct {
	DeviceID string             `json:"deviceId"`
	Reason   metering.Reason    `json:"reason"`
	Flush    metering.Flush     `json:"flush"`
	Price    *float64           `json:"price,omitempty"`
	Entries  []statistics.Entry `json:"entries"`
	At       time.Time          `json:"at"`
}

// PriceRecorded is published when a snapshot was added to a device history.
type PriceRecorded struct {
	DeviceID string           `json:"deviceId"`
	Snapshot pricing.Snapshot `json:"snapshot"`
	At       time.Time        `json:"at"`
}
