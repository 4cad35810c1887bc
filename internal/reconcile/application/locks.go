package application

import (
	"context"
	"sync"
)

// DeviceLocks serializes work per device. Waiters block on a channel until
// the holder releases or their context ends.
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	slot chan struct{}
	refs int
}

// NewDeviceLocks constructs an empty lock table.
func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: make(map[string]*deviceLock)}
}

// Acquire blocks until the device lock is held. The returned release func
// is idempotent.
func (l *DeviceLocks) Acquire(ctx context.Context, deviceID string) (func(), error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}

	l.mu.Lock()
	dl := l.locks[deviceID]
	if dl == nil {
		dl = &deviceLock{slot: make(chan struct{}, 1)}
		l.locks[deviceID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(deviceID, dl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-dl.slot
			l.unref(deviceID, dl)
		})
	}, nil
}

func (l *DeviceLocks) unref(deviceID string, dl *deviceLock) {
	l.mu.Lock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.locks, deviceID)
	}
	l.mu.Unlock()
}

// Len returns the number of devices currently locked or awaited.
func (l *DeviceLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
