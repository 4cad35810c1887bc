package finance

import (
	"fmt"
	"math"
	"time"
)

// Clock provides time for validation and audit timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now() }

// ValidationResult is the outcome of a bounds check. Invalid input is
// reported here instead of as an error so callers stay live on bad samples.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func validResult() ValidationResult { return ValidationResult{IsValid: true} }

func (r *ValidationResult) fail(format string, args ...any) {
	r.IsValid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge folds other into r.
func (r *ValidationResult) Merge(other ValidationResult) {
	if !other.IsValid {
		r.IsValid = false
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Limits are the plausibility ceilings used by the validators.
type Limits struct {
	MaxEnergyKWh     float64       `yaml:"max_energy_kwh"`
	MinMeaningfulKWh float64       `yaml:"min_meaningful_kwh"`
	MaxPricePerKWh   float64       `yaml:"max_price_per_kwh"`
	MaxClockSkew     time.Duration `yaml:"max_clock_skew"`
	MaxTimestampAge  time.Duration `yaml:"max_timestamp_age"`
}

// DefaultLimits returns the built-in ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxEnergyKWh:     100,
		MinMeaningfulKWh: 0.001,
		MaxPricePerKWh:   10,
		MaxClockSkew:     5 * time.Minute,
		MaxTimestampAge:  365 * 24 * time.Hour,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxEnergyKWh <= 0 {
		l.MaxEnergyKWh = def.MaxEnergyKWh
	}
	if l.MinMeaningfulKWh <= 0 {
		l.MinMeaningfulKWh = def.MinMeaningfulKWh
	}
	if l.MaxPricePerKWh <= 0 {
		l.MaxPricePerKWh = def.MaxPricePerKWh
	}
	if l.MaxClockSkew <= 0 {
		l.MaxClockSkew = def.MaxClockSkew
	}
	if l.MaxTimestampAge <= 0 {
		l.MaxTimestampAge = def.MaxTimestampAge
	}
	return l
}

// ValidateEnergyAmount checks a single-event energy amount in kWh.
func (l Limits) ValidateEnergyAmount(kwh float64) ValidationResult {
	res := validResult()
	switch {
	case !isFinite(kwh):
		res.fail("energy amount is not finite")
	case kwh == 0:
		res.fail("energy amount is zero")
	case math.Abs(kwh) > l.MaxEnergyKWh:
		res.fail("energy amount %.4f kWh exceeds maximum %.4f kWh", kwh, l.MaxEnergyKWh)
	case math.Abs(kwh) < l.MinMeaningfulKWh:
		res.warn("energy amount %.6f kWh below meaningful threshold %.4f kWh", kwh, l.MinMeaningfulKWh)
	}
	return res
}

// ValidateEnergyPrice checks a price per kWh.
func (l Limits) ValidateEnergyPrice(price float64) ValidationResult {
	res := validResult()
	switch {
	case !isFinite(price):
		res.fail("price is not finite")
	case price < 0:
		res.fail("price %.4f is negative", price)
	case price == 0:
		res.warn("price is zero")
	case price > l.MaxPricePerKWh:
		res.warn("price %.4f exceeds plausible maximum %.4f", price, l.MaxPricePerKWh)
	}
	return res
}

// ValidateTimestamp checks a unix timestamp in seconds against now.
func (l Limits) ValidateTimestamp(tsSec float64, now time.Time) ValidationResult {
	res := validResult()
	if !isFinite(tsSec) {
		res.fail("timestamp is not finite")
		return res
	}
	if tsSec <= 0 {
		res.fail("timestamp %.0f is not positive", tsSec)
		return res
	}
	nowSec := float64(now.Unix())
	if tsSec > nowSec+l.MaxClockSkew.Seconds() {
		res.fail("timestamp %.0f is more than %s in the future", tsSec, l.MaxClockSkew)
	}
	if tsSec < nowSec-l.MaxTimestampAge.Seconds() {
		res.fail("timestamp %.0f is older than %s", tsSec, l.MaxTimestampAge)
	}
	return res
}
