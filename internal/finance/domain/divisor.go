package finance

import "fmt"

const (
	// RecoveryDivisorFallback is recorded when a candidate divisor replaced the configured one.
	RecoveryDivisorFallback = "divisor_fallback"
	// RecoveryDivisorUnresolved is recorded when no divisor produced a plausible value.
	RecoveryDivisorUnresolved = "divisor_unresolved"
)

// DivisorPolicy controls the raw-to-kWh divisor fallback ladder.
type DivisorPolicy struct {
	// Candidates are tried in order when the configured divisor is implausible.
	Candidates []float64 `yaml:"candidates"`
	// PlausibleMaxKWh is the explicit ceiling for one interval's energy.
	PlausibleMaxKWh float64 `yaml:"plausible_max_kwh"`
	// BatteryCapacityKWh derives a ceiling of twice the capacity when
	// PlausibleMaxKWh is unset.
	BatteryCapacityKWh float64 `yaml:"battery_capacity_kwh"`
}

// DefaultDivisorPolicy returns the {10, 100, 1000} ladder.
func DefaultDivisorPolicy() DivisorPolicy {
	return DivisorPolicy{Candidates: []float64{10, 100, 1000}}
}

func (p DivisorPolicy) withDefaults() DivisorPolicy {
	if len(p.Candidates) == 0 {
		p.Candidates = DefaultDivisorPolicy().Candidates
	}
	return p
}

// Ceiling returns the plausibility ceiling in kWh. Without an explicit
// ceiling or a battery capacity it is the energy validation limit, so the
// ladder never rewrites an amount the validator accepts.
func (p DivisorPolicy) Ceiling(maxEnergyKWh float64) float64 {
	if p.PlausibleMaxKWh > 0 {
		return p.PlausibleMaxKWh
	}
	if p.BatteryCapacityKWh > 0 {
		return p.BatteryCapacityKWh * 2
	}
	return maxEnergyKWh
}

// DivisorResolution is the outcome of the fallback ladder.
type DivisorResolution struct {
	Divisor      float64          `json:"divisor"`
	EnergyKWh    float64          `json:"energyKWh"`
	Configured   float64          `json:"configured"`
	UsedFallback bool             `json:"usedFallback"`
	Resolved     bool             `json:"resolved"`
	Tried        []float64        `json:"tried"`
	Audit        CalculationAudit `json:"audit"`
}

// ResolveDivisor converts a raw delta to kWh with the configured divisor and,
// only when the result is implausible (negative or above the ceiling),
// retries the candidate list. The attempt is recorded in the audit trail.
func (c *Calculator) ResolveDivisor(deltaRaw, configured float64) DivisorResolution {
	policy := c.cfg.Divisor
	ceiling := policy.Ceiling(c.cfg.Limits.MaxEnergyKWh)

	audit := c.newAudit(operationResolveDivisor)
	audit.InputValues = map[string]float64{
		"deltaRaw":   deltaRaw,
		"configured": configured,
		"ceiling":    ceiling,
	}

	res := DivisorResolution{Divisor: configured, Configured: configured}
	attempt := func(divisor float64) bool {
		res.Tried = append(res.Tried, divisor)
		if !isFinite(divisor) || divisor <= 0 {
			audit.step(fmt.Sprintf("divisor_%g_invalid", divisor), 0)
			return false
		}
		kwh := SafeDivide(deltaRaw, divisor, -1, c.cfg.EnergyDecimals)
		audit.step(fmt.Sprintf("divisor_%g", divisor), kwh)
		if kwh < 0 || kwh > ceiling {
			return false
		}
		res.Divisor = divisor
		res.EnergyKWh = kwh
		return true
	}

	switch {
	case !isFinite(deltaRaw):
		audit.Validation.fail("raw delta is not finite")
	case attempt(configured):
		res.Resolved = true
	default:
		for _, candidate := range policy.Candidates {
			if candidate == configured {
				continue
			}
			if attempt(candidate) {
				res.Resolved = true
				res.UsedFallback = true
				audit.RecoveryActions = append(audit.RecoveryActions, RecoveryDivisorFallback)
				audit.Validation.warn("divisor %g implausible, used candidate %g", configured, candidate)
				break
			}
		}
		if !res.Resolved {
			res.Divisor = configured
			res.EnergyKWh = SafeDivide(deltaRaw, configured, 0, c.cfg.EnergyDecimals)
			audit.RecoveryActions = append(audit.RecoveryActions, RecoveryDivisorUnresolved)
			audit.Validation.warn("no divisor produced a value within %.4f kWh", ceiling)
		}
	}

	audit.InputValues["selected"] = res.Divisor
	audit.FinalResult = res.EnergyKWh
	c.record(&audit)
	res.Audit = audit
	return res
}
