package contracts

import "time"

// Right is the option right: call or put.
type Right string

const (
	RightCall Right = "C"
	RightPut  Right = "P"
)

// RightFor returns the option right traded for a direction: calls for
// bullish setups, puts for bearish ones.
func RightFor(d Direction) Right {
	if d.IsBullish() {
		return RightCall
	}
	return RightPut
}

// OptionLeg is one option contract quote from the chain provider. It is
// read-only within the core.
type OptionLeg struct {
	Symbol     string    `json:"symbol"`
	Expiration time.Time `json:"expiration"`
	Strike     float64   `json:"strike"`
	Right      Right     `json:"right"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Delta      float64   `json:"delta"`
}

// Mid returns the bid/ask midpoint, the fair-value proxy used for
// spread pricing.
func (l OptionLeg) Mid() float64 {
	return (l.Bid + l.Ask) / 2
}

// SpreadPct returns the bid-ask spread as a fraction of the midpoint.
// Callers must reject legs with non-positive bid or ask before using it.
func (l OptionLeg) SpreadPct() float64 {
	mid := l.Mid()
	if mid <= 0 {
		return 1.0
	}
	return (l.Ask - l.Bid) / mid
}

// HasQuote reports whether both sides of the market are present.
func (l OptionLeg) HasQuote() bool {
	return l.Bid > 0 && l.Ask > 0
}
