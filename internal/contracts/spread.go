package contracts

// ContractMultiplier converts option prices and strike widths to dollar
// notional. US equity options are 100 shares per contract.
const ContractMultiplier = 100

// SpreadCandidate is a fully priced vertical spread built from a Signal
// and an option chain. It becomes a trade intent only after passing the
// cost, reward-to-risk and liquidity filters.
type SpreadCandidate struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Long      OptionLeg `json:"long"`
	Short     OptionLeg `json:"short"`

	Debit float64 `json:"debit"` // (mid_long - mid_short) x multiplier
	Width float64 `json:"width"` // |strike_long - strike_short| x multiplier

	// Carried from the signal for position bookkeeping.
	Underlying float64 `json:"underlying"`
	ATR        float64 `json:"atr"`
}

// RewardRisk returns (width - debit) / debit, the reward-to-risk ratio
// of the spread. Zero debit yields zero; such candidates never pass the
// cost filter anyway.
func (s SpreadCandidate) RewardRisk() float64 {
	if s.Debit <= 0 {
		return 0
	}
	return (s.Width - s.Debit) / s.Debit
}

// TradeIntent is the order the scheduler hands to the execution
// gateway: buy the long leg, sell the short leg, at a net debit limit.
type TradeIntent struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Long       OptionLeg `json:"long"`
	Short      OptionLeg `json:"short"`
	Quantity   int       `json:"quantity"`
	LimitDebit float64   `json:"limit_debit"` // per spread, in option points

	// Signal context recorded on the resulting position.
	Underlying float64 `json:"underlying"`
	ATR        float64 `json:"atr"`
}

// IntentFrom builds a single-quantity trade intent from a qualifying
// candidate, with the limit at the net mid debit.
func IntentFrom(c SpreadCandidate) TradeIntent {
	return TradeIntent{
		Symbol:     c.Symbol,
		Direction:  c.Direction,
		Long:       c.Long,
		Short:      c.Short,
		Quantity:   1,
		LimitDebit: c.Debit / ContractMultiplier,
		Underlying: c.Underlying,
		ATR:        c.ATR,
	}
}
