package ibgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tkrause/spreadpilot/pkg/logger"
)

const (
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// PriceTick is one streamed last-price update.
type PriceTick struct {
	Symbol string
	Price  float64
	At     time.Time
}

// PriceFeed streams underlying last prices from the gateway websocket
// and keeps the most recent tick per subscribed symbol. The monitor
// reads from here first and falls back to REST snapshots when a tick
// is stale.
type PriceFeed struct {
	wsURL  string
	client *Client
	logger *logger.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	ticksMu sync.RWMutex
	ticks   map[string]PriceTick

	subsMu sync.RWMutex
	subs   map[int64]string // conid -> symbol

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	startMu sync.Mutex
	started bool

	reconnectMu  sync.Mutex
	reconnecting bool
}

// NewPriceFeed creates a feed bound to the gateway websocket endpoint.
// The REST client resolves symbols to contract ids.
func NewPriceFeed(wsURL string, client *Client, log *logger.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		client: client,
		logger: log,
		ticks:  make(map[string]PriceTick),
		subs:   make(map[int64]string),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start connects and launches the read and ping loops.
func (f *PriceFeed) Start(ctx context.Context) error {
	if err := f.connect(ctx); err != nil {
		return fmt.Errorf("price feed connect: %w", err)
	}

	f.startMu.Lock()
	f.started = true
	f.startMu.Unlock()

	go f.readLoop(ctx)
	go f.pingLoop(ctx)
	return nil
}

// Stop closes the feed and waits for the read loop to drain. Safe to
// call more than once, and safe when Start never succeeded.
func (f *PriceFeed) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.startMu.Lock()
	started := f.started
	f.startMu.Unlock()

	// only a successful Start launches the read loop that closes doneCh
	if started {
		<-f.doneCh
	}
}

// Subscribe begins streaming the given symbols. Already-subscribed
// symbols are skipped.
func (f *PriceFeed) Subscribe(ctx context.Context, symbols ...string) error {
	for _, symbol := range symbols {
		conid, err := f.client.conid(ctx, symbol)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", symbol, err)
		}

		f.subsMu.Lock()
		if _, ok := f.subs[conid]; ok {
			f.subsMu.Unlock()
			continue
		}
		f.subs[conid] = symbol
		f.subsMu.Unlock()

		if err := f.sendSubscribe(conid); err != nil {
			return fmt.Errorf("subscribe %s: %w", symbol, err)
		}
	}
	return nil
}

// Unsubscribe stops streaming a symbol, typically after its position
// closes.
func (f *PriceFeed) Unsubscribe(symbol string) {
	f.subsMu.Lock()
	var conid int64
	for id, sym := range f.subs {
		if sym == symbol {
			conid = id
			delete(f.subs, id)
			break
		}
	}
	f.subsMu.Unlock()

	if conid != 0 {
		f.writeMessage(fmt.Sprintf("umd+%d+{}", conid))
	}

	f.ticksMu.Lock()
	delete(f.ticks, symbol)
	f.ticksMu.Unlock()
}

// LastPrice returns the most recent tick no older than maxAge.
func (f *PriceFeed) LastPrice(symbol string, maxAge time.Duration) (float64, bool) {
	f.ticksMu.RLock()
	tick, ok := f.ticks[symbol]
	f.ticksMu.RUnlock()

	if !ok || time.Since(tick.At) > maxAge {
		return 0, false
	}
	return tick.Price, true
}

func (f *PriceFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.wsURL, err)
	}

	f.conn = conn
	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.logger.WithField("url", f.wsURL).Info("Price feed connected")
	return nil
}

// resubscribeAll replays every active subscription after a reconnect.
func (f *PriceFeed) resubscribeAll() {
	f.subsMu.RLock()
	conids := make([]int64, 0, len(f.subs))
	for id := range f.subs {
		conids = append(conids, id)
	}
	f.subsMu.RUnlock()

	for _, id := range conids {
		if err := f.sendSubscribe(id); err != nil {
			f.logger.WithError(err).WithField("conid", id).Warn("Resubscribe failed")
		}
	}
}

func (f *PriceFeed) sendSubscribe(conid int64) error {
	return f.writeMessage(fmt.Sprintf(`smd+%d+{"fields":["31"]}`, conid))
}

func (f *PriceFeed) writeMessage(msg string) error {
	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("feed not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (f *PriceFeed) readLoop(ctx context.Context) {
	defer close(f.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
		}

		f.connMu.RLock()
		conn := f.conn
		f.connMu.RUnlock()

		if conn == nil {
			time.Sleep(1 * time.Second)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.stopCh:
				return
			default:
			}
			f.logger.WithError(err).Error("Price feed read failed")
			f.handleDisconnect(ctx)
			continue
		}

		if err := f.handleMessage(message); err != nil {
			f.logger.WithError(err).Debug("Unhandled feed message")
		}
	}
}

type feedMessage struct {
	Topic string `json:"topic"`
	Conid int64  `json:"conid"`
	Last  string `json:"31"`
}

func (f *PriceFeed) handleMessage(message []byte) error {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("unmarshal feed message: %w", err)
	}
	if msg.Last == "" {
		return nil // heartbeat or ack
	}

	price, err := strconv.ParseFloat(msg.Last, 64)
	if err != nil || price <= 0 {
		return fmt.Errorf("bad price %q on conid %d", msg.Last, msg.Conid)
	}

	f.subsMu.RLock()
	symbol, ok := f.subs[msg.Conid]
	f.subsMu.RUnlock()
	if !ok {
		return nil // late tick after unsubscribe
	}

	f.ticksMu.Lock()
	f.ticks[symbol] = PriceTick{Symbol: symbol, Price: price, At: time.Now()}
	f.ticksMu.Unlock()
	return nil
}

func (f *PriceFeed) handleDisconnect(ctx context.Context) {
	f.reconnectMu.Lock()
	if f.reconnecting {
		f.reconnectMu.Unlock()
		return
	}
	f.reconnecting = true
	f.reconnectMu.Unlock()

	defer func() {
		f.reconnectMu.Lock()
		f.reconnecting = false
		f.reconnectMu.Unlock()
	}()

	f.logger.Warn("Price feed disconnected, reconnecting")

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-time.After(delay):
		}

		if err := f.connect(ctx); err != nil {
			f.logger.WithError(err).WithField("delay", delay).Error("Feed reconnect failed, retrying")
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		f.resubscribeAll()
		f.logger.Info("Price feed reconnected")
		return
	}
}

func (f *PriceFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.connMu.RLock()
			conn := f.conn
			f.connMu.RUnlock()

			if conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				f.logger.WithError(err).Error("Price feed ping failed")
			}
		}
	}
}
