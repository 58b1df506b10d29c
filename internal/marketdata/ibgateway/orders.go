package ibgateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tkrause/spreadpilot/internal/contracts"
)

type orderLeg struct {
	Conid int64  `json:"conid"`
	Ratio int    `json:"ratio"`
	Side  string `json:"side"`
}

type orderRequest struct {
	AccountID string     `json:"acctId"`
	OrderType string     `json:"orderType"`
	Side      string     `json:"side"`
	Quantity  int        `json:"quantity"`
	Price     float64    `json:"price"`
	TIF       string     `json:"tif"`
	Legs      []orderLeg `json:"legs,omitempty"`
}

type orderResponse struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
	Text        string `json:"text"`
}

// SubmitSpread places the two-leg debit spread as a single combo limit
// order, good till cancelled, priced at the net mid.
func (c *Client) SubmitSpread(ctx context.Context, intent contracts.TradeIntent) (contracts.OrderResult, error) {
	longConid, err := c.optionConid(ctx, intent.Long)
	if err != nil {
		return contracts.OrderResult{}, err
	}
	shortConid, err := c.optionConid(ctx, intent.Short)
	if err != nil {
		return contracts.OrderResult{}, err
	}

	req := orderRequest{
		AccountID: c.accountID,
		OrderType: "LMT",
		Side:      "BUY",
		Quantity:  intent.Quantity,
		Price:     intent.LimitDebit,
		TIF:       "GTC",
		Legs: []orderLeg{
			{Conid: longConid, Ratio: 1, Side: "BUY"},
			{Conid: shortConid, Ratio: 1, Side: "SELL"},
		},
	}

	var resp []orderResponse
	path := fmt.Sprintf("/iserver/account/%s/orders", c.accountID)
	if err := c.postJSON(ctx, path, map[string]interface{}{"orders": []orderRequest{req}}, &resp); err != nil {
		return contracts.OrderResult{}, err
	}
	if len(resp) == 0 {
		return contracts.OrderResult{}, fmt.Errorf("empty order response for %s: %w", intent.Symbol, contracts.ErrExecutionFailure)
	}

	result := toOrderResult(resp[0])
	c.logger.WithFields(map[string]interface{}{
		"symbol":   intent.Symbol,
		"order_id": result.OrderID,
		"status":   string(result.Status),
		"debit":    intent.LimitDebit,
	}).Info("Spread order submitted")
	return result, nil
}

// CloseLeg submits a single-leg market order unwinding one side of a
// position. The monitor closes the two legs as a best-effort pair.
func (c *Client) CloseLeg(ctx context.Context, order contracts.LegOrder) (contracts.OrderResult, error) {
	conid, err := c.optionConid(ctx, order.Leg)
	if err != nil {
		return contracts.OrderResult{}, err
	}

	req := orderRequest{
		AccountID: c.accountID,
		OrderType: "MKT",
		Side:      string(order.Side),
		Quantity:  order.Quantity,
		TIF:       "DAY",
		Legs:      []orderLeg{{Conid: conid, Ratio: 1, Side: string(order.Side)}},
	}

	var resp []orderResponse
	path := fmt.Sprintf("/iserver/account/%s/orders", c.accountID)
	if err := c.postJSON(ctx, path, map[string]interface{}{"orders": []orderRequest{req}}, &resp); err != nil {
		return contracts.OrderResult{}, err
	}
	if len(resp) == 0 {
		return contracts.OrderResult{}, fmt.Errorf("empty close response for %s: %w", order.Symbol, contracts.ErrExecutionFailure)
	}

	result := toOrderResult(resp[0])
	c.logger.WithFields(map[string]interface{}{
		"symbol":   order.Symbol,
		"strike":   order.Leg.Strike,
		"side":     string(order.Side),
		"order_id": result.OrderID,
		"status":   string(result.Status),
	}).Info("Leg close submitted")
	return result, nil
}

// OrderStatus polls one order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (contracts.OrderResult, error) {
	var status struct {
		OrderStatus string  `json:"order_status"`
		FilledQty   float64 `json:"filled_quantity"`
		AvgPrice    float64 `json:"average_price"`
	}
	if err := c.getJSON(ctx, "/iserver/account/order/status/"+orderID, nil, &status); err != nil {
		return contracts.OrderResult{}, err
	}

	return contracts.OrderResult{
		OrderID:     orderID,
		Status:      mapOrderStatus(status.OrderStatus),
		FilledQty:   int(status.FilledQty),
		FilledPrice: status.AvgPrice,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// CancelOrder cancels a working order at the venue.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/iserver/account/%s/order/%s", c.accountID, orderID)
	if err := c.deleteJSON(ctx, path); err != nil {
		return err
	}

	c.logger.WithField("order_id", orderID).Info("Order cancel requested")
	return nil
}

// optionConid resolves an option leg to its contract id.
func (c *Client) optionConid(ctx context.Context, leg contracts.OptionLeg) (int64, error) {
	var info []struct {
		Conid int64 `json:"conid"`
	}
	params := url.Values{
		"symbol": {leg.Symbol},
		"month":  {leg.Expiration.Format("20060102")},
		"strike": {strconv.FormatFloat(leg.Strike, 'f', -1, 64)},
		"right":  {string(leg.Right)},
	}
	if err := c.getJSON(ctx, "/iserver/secdef/info", params, &info); err != nil {
		return 0, err
	}
	if len(info) == 0 {
		return 0, fmt.Errorf("no contract for %s %.2f%s: %w", leg.Symbol, leg.Strike, leg.Right, contracts.ErrDataUnavailable)
	}
	return info[0].Conid, nil
}

func toOrderResult(r orderResponse) contracts.OrderResult {
	return contracts.OrderResult{
		OrderID:   r.OrderID,
		Status:    mapOrderStatus(r.OrderStatus),
		Message:   r.Text,
		UpdatedAt: time.Now().UTC(),
	}
}

func mapOrderStatus(s string) contracts.Status {
	switch s {
	case "Filled":
		return contracts.StatusFilled
	case "Submitted", "PreSubmitted", "PendingSubmit":
		return contracts.StatusSubmitted
	case "Cancelled", "PendingCancel":
		return contracts.StatusCanceled
	case "Rejected", "Inactive":
		return contracts.StatusRejected
	default:
		return contracts.StatusPending
	}
}
