package strategy

import (
	"fmt"
	"time"
)

// ValidationError reports a single out-of-range strategy parameter.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("strategy config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func invalid(field string, value interface{}, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

var targetStrategies = map[string]bool{
	"fibonacci":  true,
	"r_multiple": true,
	"atr":        true,
	"none":       true,
}

// Validate checks every parameter for internal consistency. It returns
// the first violation found.
func (c *Config) Validate() error {
	if c.Meta.Timezone == "" {
		return invalid("meta.timezone", c.Meta.Timezone, "required")
	}
	if _, err := time.LoadLocation(c.Meta.Timezone); err != nil {
		return invalid("meta.timezone", c.Meta.Timezone, "unknown IANA zone")
	}
	if _, err := time.Parse("15:04", c.Meta.ScanTimeLocal); err != nil {
		return invalid("meta.scan_time_local", c.Meta.ScanTimeLocal, "must be HH:MM")
	}

	if c.Universe.MinMarketCapUSD <= 0 {
		return invalid("universe.min_market_cap_usd", c.Universe.MinMarketCapUSD, "must be positive")
	}
	if c.Universe.MinPriceUSD <= 0 {
		return invalid("universe.min_price_usd", c.Universe.MinPriceUSD, "must be positive")
	}

	if c.Technical.MAPeriod < 2 {
		return invalid("technical.ma_period", c.Technical.MAPeriod, "must be at least 2")
	}
	if c.Technical.MASlopeWindow < 1 || c.Technical.MASlopeWindow >= c.Technical.MAPeriod {
		return invalid("technical.ma_slope_window", c.Technical.MASlopeWindow, "must be in [1, ma_period)")
	}
	if c.Technical.ATRPeriod < 1 {
		return invalid("technical.atr_period", c.Technical.ATRPeriod, "must be at least 1")
	}
	if c.Technical.RangePeriod < 2 {
		return invalid("technical.range_period", c.Technical.RangePeriod, "must be at least 2")
	}
	if c.Technical.LookbackDays < c.Technical.MAPeriod {
		return invalid("technical.lookback_days", c.Technical.LookbackDays, "must cover ma_period")
	}
	if c.Technical.MinVolume < 0 {
		return invalid("technical.min_volume", c.Technical.MinVolume, "must be non-negative")
	}

	if c.Bases.NearHighPct <= 0 || c.Bases.NearHighPct > 1 {
		return invalid("base_patterns.near_high_pct", c.Bases.NearHighPct, "must be in (0, 1]")
	}
	if c.Bases.NearLowPct < 1 {
		return invalid("base_patterns.near_low_pct", c.Bases.NearLowPct, "must be at least 1")
	}
	if c.Bases.MaxATRRatio <= 0 {
		return invalid("base_patterns.max_atr_ratio", c.Bases.MaxATRRatio, "must be positive")
	}
	if c.Bases.TightRangeFactor <= 0 {
		return invalid("base_patterns.tight_range_factor", c.Bases.TightRangeFactor, "must be positive")
	}

	if c.Spread.TargetExpiryIndex < 0 {
		return invalid("spread.target_expiry_index", c.Spread.TargetExpiryIndex, "must be non-negative")
	}
	if c.Spread.MinDelta <= 0 || c.Spread.MinDelta >= 1 {
		return invalid("spread.min_delta", c.Spread.MinDelta, "must be in (0, 1)")
	}
	if c.Spread.MaxDelta != 0 && c.Spread.MaxDelta < c.Spread.MinDelta {
		return invalid("spread.max_delta", c.Spread.MaxDelta, "must be at least min_delta")
	}
	if c.Spread.MaxCostUSD <= 0 {
		return invalid("spread.max_cost_usd", c.Spread.MaxCostUSD, "must be positive")
	}
	if c.Spread.MinRewardRisk < 0 {
		return invalid("spread.min_reward_risk", c.Spread.MinRewardRisk, "must be non-negative")
	}
	if c.Spread.MaxBidAskPct <= 0 || c.Spread.MaxBidAskPct > 1 {
		return invalid("spread.max_bid_ask_pct", c.Spread.MaxBidAskPct, "must be in (0, 1]")
	}

	if c.Risk.StopLossATRMult <= 0 {
		return invalid("risk.stop_loss_atr_mult", c.Risk.StopLossATRMult, "must be positive")
	}
	if c.Risk.MaxDailyTrades < 1 {
		return invalid("risk.max_daily_trades", c.Risk.MaxDailyTrades, "must be at least 1")
	}
	if c.Risk.MaxPositions < 1 {
		return invalid("risk.max_positions", c.Risk.MaxPositions, "must be at least 1")
	}
	if c.Risk.MonitorIntervalSecs < 1 {
		return invalid("risk.monitor_interval_seconds", c.Risk.MonitorIntervalSecs, "must be at least 1")
	}

	if !targetStrategies[c.Exits.TargetStrategy] {
		return invalid("exits.target_strategy", c.Exits.TargetStrategy, "must be one of fibonacci, r_multiple, atr, none")
	}
	if c.Exits.TargetStrategy == "fibonacci" && c.Exits.FibonacciExtension <= 1 {
		return invalid("exits.fibonacci_extension", c.Exits.FibonacciExtension, "must be greater than 1")
	}
	if c.Exits.TargetStrategy == "r_multiple" && c.Exits.TargetRMultiple <= 0 {
		return invalid("exits.target_r_multiple", c.Exits.TargetRMultiple, "must be positive")
	}
	if c.Exits.TargetStrategy == "atr" && c.Exits.TargetATRMultiple <= 0 {
		return invalid("exits.target_atr_multiple", c.Exits.TargetATRMultiple, "must be positive")
	}
	if c.Exits.TrailingStopEnabled && c.Exits.TrailingStopBuffer <= 0 {
		return invalid("exits.trailing_stop_buffer", c.Exits.TrailingStopBuffer, "must be positive when trailing is enabled")
	}

	return nil
}

// MonitorInterval returns the poll interval as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Risk.MonitorIntervalSecs) * time.Second
}

// Location resolves the venue timezone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Meta.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScanCutoff returns today's gate cutoff instant in the venue zone.
func (c *Config) ScanCutoff(now time.Time) time.Time {
	loc := c.Location()
	local := now.In(loc)
	t, _ := time.Parse("15:04", c.Meta.ScanTimeLocal)
	return time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}
