package strategy

// Config is the full set of trading-rule parameters. Infrastructure
// settings (database, gateway, alerting) live in pkg/config; everything
// that shapes a trading decision lives here so a single YAML file pins
// the strategy.
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Universe  Universe  `yaml:"universe" json:"universe"`
	Technical Technical `yaml:"technical" json:"technical"`
	Bases     Bases     `yaml:"base_patterns" json:"base_patterns"`
	Spread    Spread    `yaml:"spread" json:"spread"`
	Risk      Risk      `yaml:"risk" json:"risk"`
	Exits     Exits     `yaml:"exits" json:"exits"`
}

// Meta pins strategy identity and the daily execution window.
type Meta struct {
	StrategyID    string `yaml:"strategy_id" json:"strategy_id"`
	Version       string `yaml:"version" json:"version"`
	Timezone      string `yaml:"timezone" json:"timezone"`             // trading venue local zone
	ScanTimeLocal string `yaml:"scan_time_local" json:"scan_time_local"` // HH:MM cutoff for the daily gate
}

// Universe holds the large-cap liquidity filter thresholds.
type Universe struct {
	MinMarketCapUSD float64 `yaml:"min_market_cap_usd" json:"min_market_cap_usd"`
	MinPriceUSD     float64 `yaml:"min_price_usd" json:"min_price_usd"`
}

// Technical holds indicator windows and the volume floor.
type Technical struct {
	LookbackDays  int   `yaml:"lookback_days" json:"lookback_days"`
	MAPeriod      int   `yaml:"ma_period" json:"ma_period"`
	MASlopeWindow int   `yaml:"ma_slope_window" json:"ma_slope_window"`
	ATRPeriod     int   `yaml:"atr_period" json:"atr_period"`
	RangePeriod   int   `yaml:"range_period" json:"range_period"` // rolling high/low window
	MinVolume     int64 `yaml:"min_volume" json:"min_volume"`
}

// Bases holds the high/low base consolidation thresholds.
type Bases struct {
	NearHighPct      float64 `yaml:"near_high_pct" json:"near_high_pct"`
	NearLowPct       float64 `yaml:"near_low_pct" json:"near_low_pct"`
	MaxATRRatio      float64 `yaml:"max_atr_ratio" json:"max_atr_ratio"`
	TightRangeFactor float64 `yaml:"tight_range_factor" json:"tight_range_factor"`
}

// Spread holds the vertical spread construction filters.
type Spread struct {
	TargetExpiryIndex int     `yaml:"target_expiry_index" json:"target_expiry_index"` // 0=nearest, 1=second-nearest
	MinDelta          float64 `yaml:"min_delta" json:"min_delta"`
	MaxDelta          float64 `yaml:"max_delta" json:"max_delta"` // 0 disables the ceiling
	MaxCostUSD        float64 `yaml:"max_cost_usd" json:"max_cost_usd"`
	MinRewardRisk     float64 `yaml:"min_reward_risk" json:"min_reward_risk"`
	MaxBidAskPct      float64 `yaml:"max_bid_ask_pct" json:"max_bid_ask_pct"`
}

// Risk holds position sizing caps and the stop-loss multiplier.
type Risk struct {
	StopLossATRMult     float64 `yaml:"stop_loss_atr_mult" json:"stop_loss_atr_mult"`
	MaxDailyTrades      int     `yaml:"max_daily_trades" json:"max_daily_trades"`
	MaxPositions        int     `yaml:"max_positions" json:"max_positions"`
	MonitorIntervalSecs int     `yaml:"monitor_interval_seconds" json:"monitor_interval_seconds"`
}

// Exits holds the optional profit-target and trailing-stop rules.
type Exits struct {
	TargetStrategy      string  `yaml:"target_strategy" json:"target_strategy"` // fibonacci, r_multiple, atr, none
	FibonacciExtension  float64 `yaml:"fibonacci_extension" json:"fibonacci_extension"`
	TargetRMultiple     float64 `yaml:"target_r_multiple" json:"target_r_multiple"`
	TargetATRMultiple   float64 `yaml:"target_atr_multiple" json:"target_atr_multiple"`
	TrailingStopEnabled bool    `yaml:"trailing_stop_enabled" json:"trailing_stop_enabled"`
	TrailingStopBuffer  float64 `yaml:"trailing_stop_buffer" json:"trailing_stop_buffer"` // ATR multiple
}

// Default returns the baseline strategy parameters.
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID:    "vertical-spread-v1",
			Version:       "1.0.0",
			Timezone:      "America/New_York",
			ScanTimeLocal: "15:00",
		},
		Universe: Universe{
			MinMarketCapUSD: 10_000_000_000, // $10B
			MinPriceUSD:     20,
		},
		Technical: Technical{
			LookbackDays:  60,
			MAPeriod:      50,
			MASlopeWindow: 3,
			ATRPeriod:     14,
			RangePeriod:   52,
			MinVolume:     1_000_000,
		},
		Bases: Bases{
			NearHighPct:      0.95,
			NearLowPct:       1.05,
			MaxATRRatio:      0.8,
			TightRangeFactor: 0.8,
		},
		Spread: Spread{
			TargetExpiryIndex: 1, // skip the nearest cycle: excess gamma/pin risk
			MinDelta:          0.30,
			MaxDelta:          0.50,
			MaxCostUSD:        500,
			MinRewardRisk:     1.0,
			MaxBidAskPct:      0.15,
		},
		Risk: Risk{
			StopLossATRMult:     2.0,
			MaxDailyTrades:      3,
			MaxPositions:        10,
			MonitorIntervalSecs: 60,
		},
		Exits: Exits{
			TargetStrategy:      "fibonacci",
			FibonacciExtension:  1.618,
			TargetRMultiple:     2.0,
			TargetATRMultiple:   3.0,
			TrailingStopEnabled: false,
			TrailingStopBuffer:  0.5,
		},
	}
}
