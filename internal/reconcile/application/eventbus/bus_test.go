package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleEvent struct {
	ID string
}

func TestInMemoryBus_SubscribeTo(t *testing.T) {
	bus := NewInMemoryBus()
	var got []string
	SubscribeTo(bus, func(ctx context.Context, evt sampleEvent) error {
		got = append(got, evt.ID)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), sampleEvent{ID: "a"}))
	require.NoError(t, bus.Publish(context.Background(), &sampleEvent{ID: "b"}))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestInMemoryBus_FirstErrorWins(t *testing.T) {
	bus := NewInMemoryBus()
	first := errors.New("first")
	calls := 0
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error { calls++; return first })
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error { calls++; return errors.New("second") })

	err := bus.Publish(context.Background(), sampleEvent{})
	assert.ErrorIs(t, err, first)
	assert.Equal(t, 2, calls)
}

func TestInMemoryBus_NilEvent(t *testing.T) {
	assert.ErrorIs(t, NewInMemoryBus().Publish(context.Background(), nil), ErrNilEvent)
}
