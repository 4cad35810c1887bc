package memory

import (
	"context"
	"sync"

	"energy-ledger/internal/metering/domain"
)

// StateRepository keeps accumulator states in memory.
type StateRepository struct {
	mu   sync.RWMutex
	data map[string]metering.State
}

// NewStateRepository constructs a repository.
func NewStateRepository() *StateRepository {
	return &StateRepository{data: make(map[string]metering.State)}
}

// Load returns a copy of the device state.
func (r *StateRepository) Load(ctx context.Context, deviceID string) (*metering.State, error) {
	_ = ctx
	if deviceID == "" {
		return nil, metering.ErrEmptyDeviceID
	}
	r.mu.RLock()
	state, ok := r.data[deviceID]
	r.mu.RUnlock()
	if !ok {
		return nil, metering.ErrStateNotFound
	}
	return &state, nil
}

// Save overwrites the device state.
func (r *StateRepository) Save(ctx context.Context, deviceID string, state metering.State) error {
	_ = ctx
	if deviceID == "" {
		return metering.ErrEmptyDeviceID
	}
	r.mu.Lock()
	r.data[deviceID] = state
	r.mu.Unlock()
	return nil
}
