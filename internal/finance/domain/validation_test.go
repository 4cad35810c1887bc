package finance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimits_ValidateEnergyAmount(t *testing.T) {
	limits := DefaultLimits()

	res := limits.ValidateEnergyAmount(1.5)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)

	res = limits.ValidateEnergyAmount(-1.5)
	assert.True(t, res.IsValid)

	res = limits.ValidateEnergyAmount(0)
	assert.False(t, res.IsValid)

	res = limits.ValidateEnergyAmount(math.NaN())
	assert.False(t, res.IsValid)

	res = limits.ValidateEnergyAmount(150)
	assert.False(t, res.IsValid)
	assert.Len(t, res.Errors, 1)

	res = limits.ValidateEnergyAmount(0.0001)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)
}

func TestLimits_ValidateEnergyPrice(t *testing.T) {
	limits := DefaultLimits()

	assert.True(t, limits.ValidateEnergyPrice(0.3).IsValid)
	assert.False(t, limits.ValidateEnergyPrice(-0.1).IsValid)
	assert.False(t, limits.ValidateEnergyPrice(math.Inf(1)).IsValid)

	res := limits.ValidateEnergyPrice(0)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)

	res = limits.ValidateEnergyPrice(25)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)
}

func TestLimits_ValidateTimestamp(t *testing.T) {
	limits := DefaultLimits()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nowSec := float64(now.Unix())

	assert.True(t, limits.ValidateTimestamp(nowSec, now).IsValid)
	assert.True(t, limits.ValidateTimestamp(nowSec+240, now).IsValid)
	assert.False(t, limits.ValidateTimestamp(nowSec+600, now).IsValid)
	assert.False(t, limits.ValidateTimestamp(nowSec-400*24*3600, now).IsValid)
	assert.False(t, limits.ValidateTimestamp(0, now).IsValid)
	assert.False(t, limits.ValidateTimestamp(-5, now).IsValid)
	assert.False(t, limits.ValidateTimestamp(math.NaN(), now).IsValid)
}

func TestLimits_ZeroValuesFallBackToDefaults(t *testing.T) {
	limits := Limits{MaxEnergyKWh: 5}.withDefaults()
	assert.Equal(t, 5.0, limits.MaxEnergyKWh)
	assert.Equal(t, DefaultLimits().MaxPricePerKWh, limits.MaxPricePerKWh)
	assert.Equal(t, 5*time.Minute, limits.MaxClockSkew)
}

func TestDetectOutlier(t *testing.T) {
	history := []float64{1, 1.1, 0.9, 1.05, 0.95}

	res := DetectOutlier(5, history, 2.5)
	assert.True(t, res.IsOutlier)
	assert.Greater(t, res.ZScore, 2.5)
	assert.Equal(t, 5, res.SampleCount)

	res = DetectOutlier(1.02, history, 2.5)
	assert.False(t, res.IsOutlier)

	res = DetectOutlier(100, []float64{1, 2}, 2.5)
	assert.False(t, res.IsOutlier, "fewer than three samples never flags")

	res = DetectOutlier(100, []float64{3, 3, 3, 3}, 2.5)
	assert.False(t, res.IsOutlier, "flat history never flags")
	assert.Equal(t, 0.0, res.StdDev)
}
