package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-ledger/internal/metering/domain"
)

func TestStateRepository_SaveAndLoad(t *testing.T) {
	repo := NewStateRepository()
	ctx := context.Background()

	_, err := repo.Load(ctx, "bat-1")
	assert.ErrorIs(t, err, metering.ErrStateNotFound)

	state := metering.State{DivisorRawPerKWh: 10, LastTimestampSec: 100, LastInputRaw: 5}
	require.NoError(t, repo.Save(ctx, "bat-1", state))

	got, err := repo.Load(ctx, "bat-1")
	require.NoError(t, err)
	assert.Equal(t, state, *got)

	got.LastInputRaw = 99
	again, err := repo.Load(ctx, "bat-1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, again.LastInputRaw, "loaded state is a copy")

	assert.ErrorIs(t, repo.Save(ctx, "", state), metering.ErrEmptyDeviceID)
}
