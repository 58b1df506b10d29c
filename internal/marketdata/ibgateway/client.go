package ibgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/pkg/config"
	"github.com/tkrause/spreadpilot/pkg/httputil"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// Client talks to the local broker gateway over its REST API. All
// market-data and order traffic for the live session goes through this
// client; the streaming price feed (feed.go) rides the same gateway
// over websocket.
type Client struct {
	baseURL   string
	accountID string
	http      *httputil.Client
	logger    *logger.Logger

	// client-side pacing so a full-universe scan cannot trip the
	// gateway's market-data throttle
	dataLimiter *rate.Limiter

	conidMu sync.RWMutex
	conids  map[string]int64
}

// New creates a gateway client.
func New(cfg config.GatewayConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	limit := cfg.DataRateLimit
	if limit <= 0 {
		limit = 10
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		accountID:   cfg.AccountID,
		http:        httpClient,
		logger:      log,
		dataLimiter: rate.NewLimiter(rate.Limit(limit), limit),
		conids:      make(map[string]int64),
	}
}

// Connected reports whether the gateway session is up and
// authenticated.
func (c *Client) Connected(ctx context.Context) bool {
	var status struct {
		Authenticated bool `json:"authenticated"`
		Connected     bool `json:"connected"`
	}
	if err := c.getJSON(ctx, "/iserver/auth/status", nil, &status); err != nil {
		return false
	}
	return status.Connected && status.Authenticated
}

// conid resolves a ticker to the gateway's contract id, with a
// process-lifetime cache: contract ids are stable.
func (c *Client) conid(ctx context.Context, symbol string) (int64, error) {
	c.conidMu.RLock()
	id, ok := c.conids[symbol]
	c.conidMu.RUnlock()
	if ok {
		return id, nil
	}

	var results []struct {
		Conid   int64  `json:"conid"`
		Symbol  string `json:"symbol"`
		SecType string `json:"secType"`
	}
	params := url.Values{"symbol": {symbol}, "secType": {"STK"}}
	if err := c.getJSON(ctx, "/iserver/secdef/search", params, &results); err != nil {
		return 0, err
	}

	for _, r := range results {
		if r.Symbol == symbol && r.SecType == "STK" {
			c.conidMu.Lock()
			c.conids[symbol] = r.Conid
			c.conidMu.Unlock()
			return r.Conid, nil
		}
	}
	return 0, fmt.Errorf("no contract for %s: %w", symbol, contracts.ErrDataUnavailable)
}

// getJSON performs a paced GET against the gateway and decodes the
// response. Transport failures map to ErrGatewayUnavailable so callers
// can distinguish a dead gateway from a missing symbol.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	if err := c.dataLimiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	resp, err := c.http.Get(ctx, u)
	if err != nil {
		return fmt.Errorf("gateway GET %s: %v: %w", path, err, contracts.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway GET %s: status %d: %w", path, resp.StatusCode, contracts.ErrGatewayUnavailable)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway GET %s: status %d: %w", path, resp.StatusCode, contracts.ErrDataUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway read %s: %w", path, err)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("gateway decode %s: %w", path, err)
	}
	return nil
}

// postJSON performs a POST with a JSON body. Order submissions are not
// paced by the data limiter.
func (c *Client) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	resp, err := c.http.PostJSON(ctx, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("gateway POST %s: %v: %w", path, err, contracts.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway POST %s: status %d: %w", path, resp.StatusCode, contracts.ErrGatewayUnavailable)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway POST %s: status %d: %w", path, resp.StatusCode, contracts.ErrExecutionFailure)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway read %s: %w", path, err)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("gateway decode %s: %w", path, err)
	}
	return nil
}

// deleteJSON performs a DELETE against the gateway. Like order
// submissions, cancels are not paced by the data limiter.
func (c *Client) deleteJSON(ctx context.Context, path string) error {
	resp, err := c.http.Delete(ctx, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("gateway DELETE %s: %v: %w", path, err, contracts.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway DELETE %s: status %d: %w", path, resp.StatusCode, contracts.ErrGatewayUnavailable)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway DELETE %s: status %d: %w", path, resp.StatusCode, contracts.ErrExecutionFailure)
	}
	return nil
}

// parseGatewayDate parses the YYYYMMDD dates the gateway uses for
// expirations and bars.
func parseGatewayDate(s string) (time.Time, error) {
	return time.Parse("20060102", s)
}
