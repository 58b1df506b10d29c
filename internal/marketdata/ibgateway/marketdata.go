package ibgateway

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tkrause/spreadpilot/internal/contracts"
)

// snapshotFields requested from the gateway snapshot endpoint:
// last price, bid, ask, market cap, delta.
const snapshotFields = "31,84,86,7289,7308"

type snapshotRow struct {
	Conid     int64  `json:"conid"`
	Last      string `json:"31"`
	Bid       string `json:"84"`
	Ask       string `json:"86"`
	MarketCap string `json:"7289"`
	Delta     string `json:"7308"`
}

// Fundamentals returns the snapshot used by the universe filter.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (contracts.FundamentalSnapshot, error) {
	id, err := c.conid(ctx, symbol)
	if err != nil {
		return contracts.FundamentalSnapshot{}, err
	}

	row, err := c.snapshot(ctx, id)
	if err != nil {
		return contracts.FundamentalSnapshot{}, fmt.Errorf("snapshot %s: %w", symbol, err)
	}

	last := parseFloat(row.Last)
	marketCap := parseAbbrevNumber(row.MarketCap)
	if last <= 0 || marketCap <= 0 {
		return contracts.FundamentalSnapshot{}, fmt.Errorf("empty snapshot for %s: %w", symbol, contracts.ErrDataUnavailable)
	}

	return contracts.FundamentalSnapshot{
		Symbol:    symbol,
		MarketCap: marketCap,
		LastPrice: last,
	}, nil
}

// IsOptionable reports whether the symbol has at least one listed
// option expiration.
func (c *Client) IsOptionable(ctx context.Context, symbol string) (bool, error) {
	exps, err := c.Expirations(ctx, symbol)
	if err != nil {
		return false, err
	}
	return len(exps) > 0, nil
}

// DailyBars returns up to lookbackDays of daily history, oldest first.
func (c *Client) DailyBars(ctx context.Context, symbol string, lookbackDays int) ([]contracts.Bar, error) {
	id, err := c.conid(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var hist struct {
		Data []struct {
			T int64   `json:"t"` // epoch millis
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V float64 `json:"v"`
		} `json:"data"`
	}
	params := url.Values{
		"conid":  {strconv.FormatInt(id, 10)},
		"period": {fmt.Sprintf("%dd", lookbackDays)},
		"bar":    {"1d"},
		"outsideRth": {"false"},
	}
	if err := c.getJSON(ctx, "/iserver/marketdata/history", params, &hist); err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	if len(hist.Data) == 0 {
		return nil, fmt.Errorf("no history for %s: %w", symbol, contracts.ErrDataUnavailable)
	}

	bars := make([]contracts.Bar, 0, len(hist.Data))
	for _, d := range hist.Data {
		bars = append(bars, contracts.Bar{
			Date:   time.UnixMilli(d.T).UTC(),
			Open:   d.O,
			High:   d.H,
			Low:    d.L,
			Close:  d.C,
			Volume: int64(d.V),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// Expirations lists option expirations for a symbol, sorted ascending.
func (c *Client) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	id, err := c.conid(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var secdef struct {
		Expirations []string `json:"expirations"`
	}
	params := url.Values{
		"conid":   {strconv.FormatInt(id, 10)},
		"sectype": {"OPT"},
	}
	if err := c.getJSON(ctx, "/iserver/secdef/option-chain", params, &secdef); err != nil {
		return nil, fmt.Errorf("expirations %s: %w", symbol, err)
	}

	exps := make([]time.Time, 0, len(secdef.Expirations))
	for _, raw := range secdef.Expirations {
		t, err := parseGatewayDate(raw)
		if err != nil {
			c.logger.WithField("symbol", symbol).WithField("expiration", raw).Warn("Unparseable expiration skipped")
			continue
		}
		exps = append(exps, t)
	}
	sort.Slice(exps, func(i, j int) bool { return exps[i].Before(exps[j]) })
	return exps, nil
}

// Strikes lists option strikes for one expiration, sorted ascending.
func (c *Client) Strikes(ctx context.Context, symbol string, expiration time.Time) ([]float64, error) {
	id, err := c.conid(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var secdef struct {
		Strikes []float64 `json:"strikes"`
	}
	params := url.Values{
		"conid":   {strconv.FormatInt(id, 10)},
		"sectype": {"OPT"},
		"month":   {expiration.Format("20060102")},
	}
	if err := c.getJSON(ctx, "/iserver/secdef/strikes", params, &secdef); err != nil {
		return nil, fmt.Errorf("strikes %s: %w", symbol, err)
	}

	sort.Float64s(secdef.Strikes)
	return secdef.Strikes, nil
}

// Quote returns a live option leg quote with its delta.
func (c *Client) Quote(ctx context.Context, symbol string, expiration time.Time, strike float64, right contracts.Right) (contracts.OptionLeg, error) {
	var info []struct {
		Conid int64 `json:"conid"`
	}
	params := url.Values{
		"symbol": {symbol},
		"month":  {expiration.Format("20060102")},
		"strike": {strconv.FormatFloat(strike, 'f', -1, 64)},
		"right":  {string(right)},
	}
	if err := c.getJSON(ctx, "/iserver/secdef/info", params, &info); err != nil {
		return contracts.OptionLeg{}, fmt.Errorf("option info %s: %w", symbol, err)
	}
	if len(info) == 0 {
		return contracts.OptionLeg{}, fmt.Errorf("no option contract %s %.2f%s: %w", symbol, strike, right, contracts.ErrDataUnavailable)
	}

	row, err := c.snapshot(ctx, info[0].Conid)
	if err != nil {
		return contracts.OptionLeg{}, fmt.Errorf("option quote %s: %w", symbol, err)
	}

	return contracts.OptionLeg{
		Symbol:     symbol,
		Expiration: expiration,
		Strike:     strike,
		Right:      right,
		Bid:        parseFloat(row.Bid),
		Ask:        parseFloat(row.Ask),
		Delta:      parseFloat(row.Delta),
	}, nil
}

// SpotPrice returns the live underlying price from a REST snapshot.
// The monitor prefers the streaming feed and only falls back to this.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	id, err := c.conid(ctx, symbol)
	if err != nil {
		return 0, err
	}

	row, err := c.snapshot(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("spot %s: %w", symbol, err)
	}

	last := parseFloat(row.Last)
	if last <= 0 {
		return 0, fmt.Errorf("no last price for %s: %w", symbol, contracts.ErrDataUnavailable)
	}
	return last, nil
}

// snapshot fetches one conid's market data snapshot.
func (c *Client) snapshot(ctx context.Context, conid int64) (snapshotRow, error) {
	var rows []snapshotRow
	params := url.Values{
		"conids": {strconv.FormatInt(conid, 10)},
		"fields": {snapshotFields},
	}
	if err := c.getJSON(ctx, "/iserver/marketdata/snapshot", params, &rows); err != nil {
		return snapshotRow{}, err
	}
	if len(rows) == 0 {
		return snapshotRow{}, contracts.ErrDataUnavailable
	}
	return rows[0], nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseAbbrevNumber parses gateway numbers that may carry K/M/B
// suffixes, as the market-cap field does.
func parseAbbrevNumber(s string) float64 {
	if s == "" {
		return 0
	}
	mult := 1.0
	last := s[len(s)-1]
	switch last {
	case 'K', 'k':
		mult = 1e3
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1e6
		s = s[:len(s)-1]
	case 'B', 'b':
		mult = 1e9
		s = s[:len(s)-1]
	case 'T', 't':
		mult = 1e12
		s = s[:len(s)-1]
	}
	return parseFloat(s) * mult
}
