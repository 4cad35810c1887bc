package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"energy-ledger/internal/finance/domain"
	"energy-ledger/internal/metering/domain"
	"energy-ledger/internal/pricing/domain"
	"energy-ledger/internal/pricing/infrastructure/tariff"
	"energy-ledger/internal/statistics/domain"
)

// PathEnv names the YAML file loaded by Load.
const PathEnv = "ENERGY_LEDGER_CONFIG"

// LogConfig selects the zap preset.
type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// AccumulatorConfig tunes flush triggers.
type AccumulatorConfig struct {
	FlushIntervalMinutes float64 `yaml:"flush_interval_minutes"`
	MinDeltaTriggerRaw   float64 `yaml:"min_delta_trigger_raw"`
	FastReconciliation   bool    `yaml:"fast_reconciliation"`
}

// PricingConfig selects the price source and the history policy.
type PricingConfig struct {
	FixedPrice            *float64        `yaml:"fixed_price"`
	FallbackPrice         *float64        `yaml:"fallback_price"`
	TariffEnabled         bool            `yaml:"tariff_enabled"`
	Schedule              []tariff.Window `yaml:"schedule"`
	HistoryWindowHours    int             `yaml:"history_window_hours"`
	DedupeIntervalMinutes *int            `yaml:"dedupe_interval_minutes"`
	MaxSnapshots          int             `yaml:"max_snapshots"`
}

// Config is the service configuration.
type Config struct {
	HTTPAddr       string                     `yaml:"http_addr"`
	DatabaseURL    string                     `yaml:"database_url"`
	JWTSecret      string                     `yaml:"jwt_secret"`
	Log            LogConfig                  `yaml:"log"`
	Accumulator    AccumulatorConfig          `yaml:"accumulator"`
	Finance        finance.Config             `yaml:"finance"`
	Retention      statistics.RetentionPolicy `yaml:"retention"`
	Pricing        PricingConfig              `yaml:"pricing"`
	Timezone       string                     `yaml:"timezone"`
	TracingEnabled bool                       `yaml:"tracing_enabled"`
	OutlierWindow  int                        `yaml:"outlier_window"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Accumulator: AccumulatorConfig{
			FlushIntervalMinutes: metering.DefaultFlushIntervalMinutes,
		},
		Finance:   finance.DefaultConfig(),
		Retention: statistics.DefaultRetentionPolicy(),
		Pricing: PricingConfig{
			HistoryWindowHours: int(pricing.DefaultWindow / time.Hour),
			MaxSnapshots:       pricing.DefaultMaxSnapshots,
		},
		Timezone: "UTC",
	}
}

// Load reads .env, then the YAML file named by ENERGY_LEDGER_CONFIG, then
// environment overrides, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(PathEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenvDefault("HTTP_ADDR", c.HTTPAddr)
	c.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", c.DatabaseURL))
	c.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", c.JWTSecret))
	c.Timezone = getenvDefault("TIMEZONE", c.Timezone)
	c.TracingEnabled = getenvBoolDefault("TRACING_ENABLED", c.TracingEnabled)
	c.Log.Development = getenvBoolDefault("LOG_DEVELOPMENT", c.Log.Development)
	c.Log.Level = getenvDefault("LOG_LEVEL", c.Log.Level)
	c.Accumulator.FastReconciliation = getenvBoolDefault("FAST_RECONCILIATION", c.Accumulator.FastReconciliation)
	c.Retention.RetentionDays = getenvIntDefault("RETENTION_DAYS", c.Retention.RetentionDays)
	c.Retention.MaxEntries = getenvIntDefault("RETENTION_MAX_ENTRIES", c.Retention.MaxEntries)
	c.Pricing.TariffEnabled = getenvBoolDefault("TARIFF_ENABLED", c.Pricing.TariffEnabled)
	if value := os.Getenv("PRICE_PER_KWH"); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			c.Pricing.FixedPrice = &parsed
		}
	}
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("config: http_addr is required"))
	}
	if c.Accumulator.FlushIntervalMinutes < 0 {
		errs = append(errs, errors.New("config: accumulator.flush_interval_minutes must not be negative"))
	}
	if c.Accumulator.MinDeltaTriggerRaw < 0 {
		errs = append(errs, errors.New("config: accumulator.min_delta_trigger_raw must not be negative"))
	}
	lim := c.Finance.Limits
	if lim.MaxEnergyKWh < 0 || lim.MinMeaningfulKWh < 0 || lim.MaxPricePerKWh < 0 || lim.MaxClockSkew < 0 || lim.MaxTimestampAge < 0 {
		errs = append(errs, errors.New("config: finance limits must not be negative"))
	}
	if c.Finance.MaxProfitMagnitude < 0 {
		errs = append(errs, errors.New("config: finance.max_profit_magnitude must not be negative"))
	}
	for _, d := range c.Finance.Divisor.Candidates {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("config: divisor candidate %v must be positive", d))
		}
	}
	if c.Retention.RetentionDays <= 0 {
		errs = append(errs, errors.New("config: retention.days must be positive"))
	}
	if c.Retention.MaxEntries < 0 || c.Retention.MemoryBudgetBytes < 0 {
		errs = append(errs, errors.New("config: retention bounds must not be negative"))
	}
	if p := c.Pricing.FixedPrice; p != nil && *p < 0 {
		errs = append(errs, errors.New("config: pricing.fixed_price must not be negative"))
	}
	if p := c.Pricing.FallbackPrice; p != nil && *p < 0 {
		errs = append(errs, errors.New("config: pricing.fallback_price must not be negative"))
	}
	if c.Pricing.HistoryWindowHours < 0 || c.Pricing.MaxSnapshots < 0 {
		errs = append(errs, errors.New("config: pricing history bounds must not be negative"))
	}
	if d := c.Pricing.DedupeIntervalMinutes; d != nil && *d < 0 {
		errs = append(errs, errors.New("config: pricing.dedupe_interval_minutes must not be negative"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: unknown timezone %q", c.Timezone))
	}
	return errors.Join(errs...)
}

// Location returns the day-key location.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AccumulatorOptions maps the accumulator section onto engine options.
func (c Config) AccumulatorOptions() metering.Options {
	opts := metering.Options{
		FlushIntervalMinutes: c.Accumulator.FlushIntervalMinutes,
		MinDeltaTriggerRaw:   c.Accumulator.MinDeltaTriggerRaw,
	}
	if c.Accumulator.FastReconciliation {
		opts.FlushIntervalMinutes = metering.FastFlushIntervalMinutes
	}
	return opts
}

// PricePolicy maps the pricing section onto the history policy.
func (c Config) PricePolicy() pricing.Policy {
	policy := pricing.DefaultPolicy()
	if c.Pricing.HistoryWindowHours > 0 {
		policy.Window = time.Duration(c.Pricing.HistoryWindowHours) * time.Hour
	}
	if c.Pricing.DedupeIntervalMinutes != nil {
		policy.DedupeInterval = time.Duration(*c.Pricing.DedupeIntervalMinutes) * time.Minute
	}
	if c.Pricing.MaxSnapshots > 0 {
		policy.MaxSnapshots = c.Pricing.MaxSnapshots
	}
	return policy
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
