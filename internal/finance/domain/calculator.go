package finance

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultEnergyDecimals     = 4
	defaultCurrencyDecimals   = 4
	defaultMaxProfitMagnitude = 1000

	operationEnergyMeterDelta = "energy.meter_delta"
	operationEnergyPower      = "energy.power_integration"
	operationEnergyInvalid    = "energy.invalid_input"
	operationProfitSavings    = "profit_savings"
	operationResolveDivisor   = "divisor.resolve"

	// RecoveryCappedProfit is recorded when a profit/savings value hits the sanity ceiling.
	RecoveryCappedProfit = "capped_profit_magnitude"
	// RecoveryAbsolutePower is recorded when a negative power reading is folded to its magnitude.
	RecoveryAbsolutePower = "absolute_power"
)

// Config configures a Calculator. Zero values fall back to defaults.
type Config struct {
	Limits             Limits        `yaml:"limits"`
	EnergyDecimals     int           `yaml:"energy_decimals"`
	CurrencyDecimals   int           `yaml:"currency_decimals"`
	MaxProfitMagnitude float64       `yaml:"max_profit_magnitude"`
	AuditCapacity      int           `yaml:"audit_capacity"`
	AuditRetain        int           `yaml:"audit_retain"`
	OutlierThreshold   float64       `yaml:"outlier_threshold"`
	Divisor            DivisorPolicy `yaml:"divisor"`
}

// DefaultConfig returns the built-in calculator configuration.
func DefaultConfig() Config {
	return Config{
		Limits:             DefaultLimits(),
		EnergyDecimals:     defaultEnergyDecimals,
		CurrencyDecimals:   defaultCurrencyDecimals,
		MaxProfitMagnitude: defaultMaxProfitMagnitude,
		AuditCapacity:      DefaultAuditCapacity,
		AuditRetain:        DefaultAuditRetain,
		OutlierThreshold:   DefaultOutlierThreshold,
		Divisor:            DefaultDivisorPolicy(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	c.Limits = c.Limits.withDefaults()
	if c.EnergyDecimals <= 0 {
		c.EnergyDecimals = def.EnergyDecimals
	}
	if c.CurrencyDecimals <= 0 {
		c.CurrencyDecimals = def.CurrencyDecimals
	}
	if c.MaxProfitMagnitude <= 0 {
		c.MaxProfitMagnitude = def.MaxProfitMagnitude
	}
	if c.AuditCapacity <= 0 {
		c.AuditCapacity = def.AuditCapacity
	}
	if c.AuditRetain <= 0 {
		c.AuditRetain = def.AuditRetain
	}
	if c.OutlierThreshold <= 0 {
		c.OutlierThreshold = def.OutlierThreshold
	}
	c.Divisor = c.Divisor.withDefaults()
	return c
}

// Option configures the calculator.
type Option func(*Calculator)

// WithClock overrides the clock used for audit timestamps and timestamp checks.
func WithClock(clock Clock) Option {
	return func(c *Calculator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Calculator performs validated, rounding-safe energy and money arithmetic
// and keeps a bounded audit trail of every calculation.
type Calculator struct {
	cfg   Config
	clock Clock
	audit *AuditLog
}

// NewCalculator constructs a calculator.
func NewCalculator(cfg Config, opts ...Option) *Calculator {
	cfg = cfg.withDefaults()
	c := &Calculator{
		cfg:   cfg,
		clock: SystemClock{},
		audit: NewAuditLog(cfg.AuditCapacity, cfg.AuditRetain),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Calculator) Config() Config { return c.cfg }

// Limits returns the effective validation limits.
func (c *Calculator) Limits() Limits { return c.cfg.Limits }

// Clock returns the calculator clock.
func (c *Calculator) Clock() Clock { return c.clock }

// AuditTrail returns the held calculation audits, oldest first.
func (c *Calculator) AuditTrail() []CalculationAudit { return c.audit.Records() }

// AuditLen returns the number of held audits.
func (c *Calculator) AuditLen() int { return c.audit.Len() }

// ValidateEnergyAmount validates kWh against the configured limits.
func (c *Calculator) ValidateEnergyAmount(kwh float64) ValidationResult {
	return c.cfg.Limits.ValidateEnergyAmount(kwh)
}

// ValidateEnergyPrice validates a price against the configured limits.
func (c *Calculator) ValidateEnergyPrice(price float64) ValidationResult {
	return c.cfg.Limits.ValidateEnergyPrice(price)
}

// ValidateTimestamp validates unix seconds against the calculator clock.
func (c *Calculator) ValidateTimestamp(tsSec float64) ValidationResult {
	return c.cfg.Limits.ValidateTimestamp(tsSec, c.clock.Now())
}

// DetectOutlier runs the z-score check with the configured threshold.
func (c *Calculator) DetectOutlier(value float64, history []float64) OutlierResult {
	return DetectOutlier(value, history, c.cfg.OutlierThreshold)
}

// EnergyInput selects one of two calculation modes: meter delta
// (StartMeter, EndMeter, Divisor) or power integration (PowerW, IntervalHours).
type EnergyInput struct {
	Type          EntryType
	StartMeter    *float64
	EndMeter      *float64
	Divisor       *float64
	PowerW        *float64
	IntervalHours *float64
}

func (in EnergyInput) hasMeterDelta() bool {
	return in.StartMeter != nil && in.EndMeter != nil && in.Divisor != nil
}

func (in EnergyInput) hasPower() bool {
	return in.PowerW != nil && in.IntervalHours != nil
}

// EnergyResult is a signed kWh amount with its audit.
type EnergyResult struct {
	EnergyAmount float64          `json:"energyAmount"`
	Method       string           `json:"method"`
	Audit        CalculationAudit `json:"audit"`
}

// CalculateEnergyAmount computes a signed energy amount in kWh. Invalid or
// missing input yields 0 with a populated validation failure.
func (c *Calculator) CalculateEnergyAmount(in EnergyInput) EnergyResult {
	audit := c.newAudit(operationEnergyInvalid)
	audit.InputValues = energyInputValues(in)

	res := EnergyResult{Method: operationEnergyInvalid}
	switch {
	case !in.Type.IsValid():
		audit.Validation.fail("invalid entry type %q", in.Type)
	case in.hasMeterDelta():
		audit.Operation = operationEnergyMeterDelta
		res.Method = operationEnergyMeterDelta
		res.EnergyAmount = c.meterDeltaEnergy(in, &audit)
	case in.hasPower():
		audit.Operation = operationEnergyPower
		res.Method = operationEnergyPower
		res.EnergyAmount = c.powerEnergy(in, &audit)
	default:
		audit.Validation.fail("missing inputs: %s", strings.Join(missingEnergyInputs(in), ", "))
	}

	if !audit.Validation.IsValid {
		res.EnergyAmount = 0
	}
	audit.FinalResult = res.EnergyAmount
	c.record(&audit)
	res.Audit = audit
	return res
}

func (c *Calculator) meterDeltaEnergy(in EnergyInput, audit *CalculationAudit) float64 {
	start, end, divisor := *in.StartMeter, *in.EndMeter, *in.Divisor
	if !isFinite(start) || !isFinite(end) {
		audit.Validation.fail("meter readings are not finite")
		return 0
	}
	if !isFinite(divisor) || divisor <= 0 {
		audit.Validation.fail("divisor %.4f is not a positive finite number", divisor)
		return 0
	}
	delta := end - start
	audit.step("meter_delta", delta)
	if delta < 0 {
		audit.Validation.fail("meter delta %.4f is negative", delta)
		return 0
	}

	exact := delta / divisor
	energy := SafeDivide(delta, divisor, 0, c.cfg.EnergyDecimals)
	audit.step("divide_by_divisor", energy)
	c.notePrecision(audit, exact, energy)

	audit.Validation.Merge(c.cfg.Limits.ValidateEnergyAmount(energy))
	signed := energy * in.Type.Sign()
	audit.step("apply_sign", signed)
	return signed
}

func (c *Calculator) powerEnergy(in EnergyInput, audit *CalculationAudit) float64 {
	power, hours := *in.PowerW, *in.IntervalHours
	if !isFinite(power) {
		audit.Validation.fail("power is not finite")
		return 0
	}
	if !isFinite(hours) || hours <= 0 {
		audit.Validation.fail("time interval %.4f h is not a positive finite number", hours)
		return 0
	}
	if power < 0 {
		power = math.Abs(power)
		audit.RecoveryActions = append(audit.RecoveryActions, RecoveryAbsolutePower)
		audit.Validation.warn("negative power folded to magnitude; direction comes from entry type")
	}

	kw := SafeDivide(power, 1000, 0, c.cfg.EnergyDecimals+3)
	audit.step("watts_to_kw", kw)
	exact := power / 1000 * hours
	energy, err := BankersRounding(kw*hours, c.cfg.EnergyDecimals)
	if err != nil {
		audit.Validation.fail("energy rounding failed: %v", err)
		return 0
	}
	audit.step("integrate_over_time", energy)
	c.notePrecision(audit, exact, energy)

	audit.Validation.Merge(c.cfg.Limits.ValidateEnergyAmount(energy))
	signed := energy * in.Type.Sign()
	audit.step("apply_sign", signed)
	return signed
}

// ProfitResult is a signed money amount: positive for savings/sales,
// negative for charging cost.
type ProfitResult struct {
	ProfitSavings float64          `json:"profitSavings"`
	Capped        bool             `json:"capped"`
	Audit         CalculationAudit `json:"audit"`
}

// CalculateProfitSavings prices an energy amount. A missing or invalid price
// fails closed to 0.
func (c *Calculator) CalculateProfitSavings(energyAmount float64, price *float64, entryType EntryType) ProfitResult {
	res := c.EvaluateProfitSavings(energyAmount, price, entryType)
	c.record(&res.Audit)
	return res
}

// EvaluateProfitSavings is CalculateProfitSavings without an audit trail
// record. Read-side views re-price stored entries with it.
func (c *Calculator) EvaluateProfitSavings(energyAmount float64, price *float64, entryType EntryType) ProfitResult {
	audit := c.newAudit(operationProfitSavings)
	audit.InputValues = map[string]float64{"energyAmount": energyAmount}
	if price != nil {
		audit.InputValues["price"] = *price
	}

	res := ProfitResult{}
	switch {
	case !entryType.IsValid():
		audit.Validation.fail("invalid entry type %q", entryType)
	case price == nil:
		audit.Validation.fail("missing price")
	case !isFinite(energyAmount):
		audit.Validation.fail("energy amount is not finite")
	default:
		audit.Validation.Merge(c.cfg.Limits.ValidateEnergyPrice(*price))
		if audit.Validation.IsValid {
			res = c.profit(energyAmount, *price, entryType, &audit)
		}
	}

	if !audit.Validation.IsValid {
		res.ProfitSavings = 0
	}
	audit.FinalResult = res.ProfitSavings
	res.Audit = audit
	return res
}

func (c *Calculator) profit(energyAmount, price float64, entryType EntryType, audit *CalculationAudit) ProfitResult {
	if energyAmount == 0 {
		audit.Validation.warn("energy amount is zero")
	}
	product := math.Abs(energyAmount) * price
	audit.step("energy_times_price", product)
	gross := SafeDivide(product, 1, 0, c.cfg.CurrencyDecimals)
	audit.step("round_currency", gross)
	c.notePrecision(audit, product, gross)

	value := gross
	if entryType == EntryTypeCharging {
		value = -gross
	}
	audit.step("apply_direction", value)

	res := ProfitResult{ProfitSavings: value}
	if math.Abs(value) > c.cfg.MaxProfitMagnitude {
		res.ProfitSavings = math.Copysign(c.cfg.MaxProfitMagnitude, value)
		res.Capped = true
		audit.RecoveryActions = append(audit.RecoveryActions, RecoveryCappedProfit)
		audit.Validation.warn("profit/savings %.4f capped at %.4f", value, c.cfg.MaxProfitMagnitude)
		audit.step("cap_magnitude", res.ProfitSavings)
	}
	return res
}

func (c *Calculator) newAudit(operation string) CalculationAudit {
	return CalculationAudit{
		ID:         uuid.NewString(),
		Operation:  operation,
		Validation: validResult(),
		CreatedAt:  c.clock.Now().UTC(),
	}
}

func (c *Calculator) record(audit *CalculationAudit) {
	c.audit.Append(*audit)
}

func (c *Calculator) notePrecision(audit *CalculationAudit, exact, rounded float64) {
	loss := RelativeError(exact, rounded)
	audit.PrecisionLoss = math.Max(audit.PrecisionLoss, loss)
	if loss > PrecisionLossThreshold {
		audit.Validation.warn("precision loss %.2e exceeds %.0e", loss, PrecisionLossThreshold)
	}
}

func energyInputValues(in EnergyInput) map[string]float64 {
	values := make(map[string]float64, 5)
	put := func(key string, v *float64) {
		if v != nil {
			values[key] = *v
		}
	}
	put("startMeter", in.StartMeter)
	put("endMeter", in.EndMeter)
	put("divisor", in.Divisor)
	put("powerW", in.PowerW)
	put("intervalHours", in.IntervalHours)
	return values
}

func missingEnergyInputs(in EnergyInput) []string {
	var missing []string
	if in.StartMeter == nil {
		missing = append(missing, "startMeter")
	}
	if in.EndMeter == nil {
		missing = append(missing, "endMeter")
	}
	if in.Divisor == nil {
		missing = append(missing, "divisor")
	}
	if in.PowerW == nil {
		missing = append(missing, "powerW")
	}
	if in.IntervalHours == nil {
		missing = append(missing, "intervalHours")
	}
	return missing
}
