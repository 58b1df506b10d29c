package contracts

import "time"

// Bar is one trading day of OHLCV data for a symbol. The core only ever
// holds a read-only trailing window of bars owned by the market-data
// provider.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// IsBullish reports whether the bar closed above its open.
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// IsBearish reports whether the bar closed below its open.
func (b Bar) IsBearish() bool {
	return b.Close < b.Open
}

// Range returns the high-low span of the bar.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// FundamentalSnapshot is the per-ticker fundamental data consumed by the
// universe filter.
type FundamentalSnapshot struct {
	Symbol    string  `json:"symbol"`
	MarketCap float64 `json:"market_cap"`
	LastPrice float64 `json:"last_price"`
}

// Candidate is a ticker that passed the universe filter for one scan
// cycle. Candidates are immutable and discarded after filtering.
type Candidate struct {
	Symbol     string  `json:"symbol"`
	MarketCap  float64 `json:"market_cap"`
	LastPrice  float64 `json:"last_price"`
	Optionable bool    `json:"optionable"`
}
