package finance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestCalculator(cfg Config) *Calculator {
	return NewCalculator(cfg, WithClock(fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}))
}

func TestCalculateEnergyAmount_MeterDelta(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	res := calc.CalculateEnergyAmount(EnergyInput{
		Type:       EntryTypeCharging,
		StartMeter: Float64(1000),
		EndMeter:   Float64(1025),
		Divisor:    Float64(10),
	})
	assert.Equal(t, 2.5, res.EnergyAmount)
	assert.Equal(t, operationEnergyMeterDelta, res.Method)
	assert.True(t, res.Audit.Validation.IsValid)
	assert.NotEmpty(t, res.Audit.ID)

	res = calc.CalculateEnergyAmount(EnergyInput{
		Type:       EntryTypeDischarging,
		StartMeter: Float64(500),
		EndMeter:   Float64(530),
		Divisor:    Float64(100),
	})
	assert.Equal(t, -0.3, res.EnergyAmount)
}

func TestCalculateEnergyAmount_PowerIntegration(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	res := calc.CalculateEnergyAmount(EnergyInput{
		Type:          EntryTypeDischarging,
		PowerW:        Float64(1500),
		IntervalHours: Float64(0.5),
	})
	assert.Equal(t, -0.75, res.EnergyAmount)
	assert.Equal(t, operationEnergyPower, res.Method)

	res = calc.CalculateEnergyAmount(EnergyInput{
		Type:          EntryTypeCharging,
		PowerW:        Float64(-2000),
		IntervalHours: Float64(1),
	})
	assert.Equal(t, 2.0, res.EnergyAmount)
	assert.Contains(t, res.Audit.RecoveryActions, RecoveryAbsolutePower)
}

func TestCalculateEnergyAmount_InvalidInputReturnsZero(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	cases := map[string]EnergyInput{
		"negative delta": {Type: EntryTypeCharging, StartMeter: Float64(10), EndMeter: Float64(5), Divisor: Float64(10)},
		"zero divisor":   {Type: EntryTypeCharging, StartMeter: Float64(0), EndMeter: Float64(5), Divisor: Float64(0)},
		"zero delta":     {Type: EntryTypeCharging, StartMeter: Float64(5), EndMeter: Float64(5), Divisor: Float64(10)},
		"above ceiling":  {Type: EntryTypeCharging, StartMeter: Float64(0), EndMeter: Float64(5000), Divisor: Float64(10)},
		"bad interval":   {Type: EntryTypeCharging, PowerW: Float64(100), IntervalHours: Float64(0)},
		"bad type":       {Type: "idle", StartMeter: Float64(0), EndMeter: Float64(5), Divisor: Float64(10)},
	}
	for name, in := range cases {
		res := calc.CalculateEnergyAmount(in)
		assert.Equal(t, 0.0, res.EnergyAmount, name)
		assert.False(t, res.Audit.Validation.IsValid, name)
		assert.NotEmpty(t, res.Audit.Validation.Errors, name)
	}
}

func TestCalculateEnergyAmount_MissingInputsNamed(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	res := calc.CalculateEnergyAmount(EnergyInput{Type: EntryTypeCharging, StartMeter: Float64(1)})
	assert.Equal(t, 0.0, res.EnergyAmount)
	require.Len(t, res.Audit.Validation.Errors, 1)
	msg := res.Audit.Validation.Errors[0]
	assert.Contains(t, msg, "endMeter")
	assert.Contains(t, msg, "divisor")
	assert.Contains(t, msg, "powerW")
	assert.Contains(t, msg, "intervalHours")
	assert.NotContains(t, msg, "startMeter")
}

func TestCalculateProfitSavings(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	res := calc.CalculateProfitSavings(-2, Float64(0.25), EntryTypeDischarging)
	assert.Equal(t, 0.5, res.ProfitSavings)
	assert.True(t, res.Audit.Validation.IsValid)

	res = calc.CalculateProfitSavings(4, Float64(0.3), EntryTypeCharging)
	assert.Equal(t, -1.2, res.ProfitSavings)
}

func TestCalculateProfitSavings_FailsClosed(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	res := calc.CalculateProfitSavings(2, nil, EntryTypeCharging)
	assert.Equal(t, 0.0, res.ProfitSavings)
	assert.False(t, res.Audit.Validation.IsValid)

	res = calc.CalculateProfitSavings(2, Float64(-0.1), EntryTypeCharging)
	assert.Equal(t, 0.0, res.ProfitSavings)
	assert.False(t, res.Audit.Validation.IsValid)
}

func TestEvaluateProfitSavings_DoesNotRecord(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	res := calc.EvaluateProfitSavings(-2, Float64(0.25), EntryTypeDischarging)
	assert.Equal(t, 0.5, res.ProfitSavings)
	assert.Equal(t, 0, calc.AuditLen())

	calc.CalculateProfitSavings(-2, Float64(0.25), EntryTypeDischarging)
	assert.Equal(t, 1, calc.AuditLen())
}

func TestCalculateProfitSavings_CapsMagnitude(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxProfitMagnitude = 5
	calc := newTestCalculator(cfg)

	res := calc.CalculateProfitSavings(90, Float64(9), EntryTypeCharging)
	assert.Equal(t, -5.0, res.ProfitSavings)
	assert.True(t, res.Capped)
	assert.Contains(t, res.Audit.RecoveryActions, RecoveryCappedProfit)
}

func TestCalculator_AuditRingBufferBound(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	for i := 0; i < DefaultAuditCapacity; i++ {
		calc.CalculateProfitSavings(1, Float64(0.1), EntryTypeDischarging)
	}
	assert.Equal(t, DefaultAuditCapacity, calc.AuditLen())

	last := calc.CalculateProfitSavings(2, Float64(0.1), EntryTypeDischarging)
	assert.Equal(t, DefaultAuditRetain, calc.AuditLen())

	trail := calc.AuditTrail()
	require.NotEmpty(t, trail)
	assert.Equal(t, last.Audit.ID, trail[len(trail)-1].ID)
}

func TestAuditLog_KeepsNewest(t *testing.T) {
	log := NewAuditLog(4, 2)
	for i := 0; i < 5; i++ {
		log.Append(CalculationAudit{FinalResult: float64(i)})
	}
	records := log.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 3.0, records[0].FinalResult)
	assert.Equal(t, 4.0, records[1].FinalResult)
}

func TestResolveDivisor(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	res := calc.ResolveDivisor(25, 10)
	assert.True(t, res.Resolved)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, 10.0, res.Divisor)
	assert.Equal(t, 2.5, res.EnergyKWh)

	// 50000 raw at divisor 10 is 5000 kWh; 100 still gives 500; 1000 gives 50.
	res = calc.ResolveDivisor(50000, 10)
	assert.True(t, res.Resolved)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, 1000.0, res.Divisor)
	assert.Equal(t, 50.0, res.EnergyKWh)
	assert.Equal(t, []float64{10, 100, 1000}, res.Tried)
	assert.Contains(t, res.Audit.RecoveryActions, RecoveryDivisorFallback)
}

func TestResolveDivisor_DefaultCeilingIsEnergyLimit(t *testing.T) {
	calc := newTestCalculator(DefaultConfig())

	// 15 kWh passes energy validation, so the configured divisor must stand.
	require.True(t, calc.ValidateEnergyAmount(15).IsValid)
	res := calc.ResolveDivisor(1500, 100)
	assert.True(t, res.Resolved)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, 100.0, res.Divisor)
	assert.Equal(t, 15.0, res.EnergyKWh)
	assert.Empty(t, res.Audit.RecoveryActions)
	assert.Equal(t, DefaultLimits().MaxEnergyKWh, res.Audit.InputValues["ceiling"])

	cfg := DefaultConfig()
	cfg.Limits.MaxEnergyKWh = 250
	assert.Equal(t, 200.0, newTestCalculator(cfg).ResolveDivisor(20000, 100).EnergyKWh)
}

func TestResolveDivisor_CeilingFromBatteryCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Divisor.BatteryCapacityKWh = 30
	calc := newTestCalculator(cfg)

	res := calc.ResolveDivisor(500, 10)
	assert.False(t, res.UsedFallback, "50 kWh is within 2x a 30 kWh battery")
	assert.Equal(t, 50.0, res.EnergyKWh)

	res = calc.ResolveDivisor(1e9, 10)
	assert.False(t, res.Resolved)
	assert.Equal(t, 10.0, res.Divisor)
	assert.Contains(t, res.Audit.RecoveryActions, RecoveryDivisorUnresolved)
}
