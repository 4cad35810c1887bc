package memory

import (
	"context"
	"sync"

	"energy-ledger/internal/statistics/domain"
)

// EntryRepository keeps retained entry lists in memory.
type EntryRepository struct {
	mu   sync.RWMutex
	data map[string][]statistics.Entry
}

// NewEntryRepository constructs a repository.
func NewEntryRepository() *EntryRepository {
	return &EntryRepository{data: make(map[string][]statistics.Entry)}
}

// Load returns a copy of the device entries.
func (r *EntryRepository) Load(ctx context.Context, deviceID string) ([]statistics.Entry, error) {
	_ = ctx
	if deviceID == "" {
		return nil, statistics.ErrEmptyDeviceID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneEntries(r.data[deviceID]), nil
}

// Save overwrites the device entries.
func (r *EntryRepository) Save(ctx context.Context, deviceID string, entries []statistics.Entry) error {
	_ = ctx
	if deviceID == "" {
		return statistics.ErrEmptyDeviceID
	}
	copy := cloneEntries(entries)
	r.mu.Lock()
	r.data[deviceID] = copy
	r.mu.Unlock()
	return nil
}

func cloneEntries(entries []statistics.Entry) []statistics.Entry {
	if entries == nil {
		return nil
	}
	out := make([]statistics.Entry, len(entries))
	copy(out, entries)
	return out
}
