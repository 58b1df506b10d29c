package contracts

import "time"

// Direction classifies the setup a scan detected. The four values are
// mutually exclusive per symbol per day.
type Direction string

const (
	DirectionBullPullback Direction = "bull_pullback"
	DirectionBearRally    Direction = "bear_rally"
	DirectionHighBase     Direction = "high_base"
	DirectionLowBase      Direction = "low_base"
)

// IsBullish reports whether the direction trades the upside (call
// spreads, stop below entry).
func (d Direction) IsBullish() bool {
	return d == DirectionBullPullback || d == DirectionHighBase
}

// Signal is a directional setup emitted by the pattern scanner for one
// symbol on one day. It is consumed once by the spread selector and not
// persisted.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	AsOf       time.Time `json:"as_of"`
	Underlying float64   `json:"underlying"` // last close of the underlying
	ATR        float64   `json:"atr"`        // ATR14 at signal time
}
