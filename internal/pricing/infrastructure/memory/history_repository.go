package memory

import (
	"context"
	"sync"

	"energy-ledger/internal/pricing/domain"
)

// HistoryRepository keeps price histories in memory.
type HistoryRepository struct {
	mu   sync.RWMutex
	data map[string]pricing.History
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{data: make(map[string]pricing.History)}
}

// Load returns a copy of the device history.
func (r *HistoryRepository) Load(ctx context.Context, deviceID string) (pricing.History, error) {
	_ = ctx
	if deviceID == "" {
		return nil, pricing.ErrEmptyDeviceID
	}
	r.mu.RLock()
	h := r.data[deviceID]
	r.mu.RUnlock()
	return h.Clone(), nil
}

// Save overwrites the device history.
func (r *HistoryRepository) Save(ctx context.Context, deviceID string, history pricing.History) error {
	_ = ctx
	if deviceID == "" {
		return pricing.ErrEmptyDeviceID
	}
	copy := history.Clone()
	r.mu.Lock()
	r.data[deviceID] = copy
	r.mu.Unlock()
	return nil
}
