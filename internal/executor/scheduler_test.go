package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/position"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/internal/universe"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type stubSymbols struct {
	symbols  []string
	failures int
	calls    int
}

func (s *stubSymbols) Symbols(context.Context) ([]string, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("constituents fetch: %w", contracts.ErrDataUnavailable)
	}
	return s.symbols, nil
}

type stubFilter struct{}

func (stubFilter) Build(_ context.Context, symbols []string) (*universe.Result, error) {
	r := &universe.Result{Excluded: map[string]string{}}
	for _, sym := range symbols {
		r.Candidates = append(r.Candidates, contracts.Candidate{Symbol: sym, Optionable: true})
	}
	return r, nil
}

type stubScanner struct {
	signals []contracts.Signal
	calls   int
}

func (s *stubScanner) Scan(context.Context, []contracts.Candidate) ([]contracts.Signal, error) {
	s.calls++
	return s.signals, nil
}

type stubSelector struct {
	noQualify map[string]bool
}

func (s *stubSelector) Select(_ context.Context, sig contracts.Signal) (*contracts.SpreadCandidate, error) {
	if s.noQualify[sig.Symbol] {
		return nil, fmt.Errorf("%s: %w", sig.Symbol, contracts.ErrNoQualifyingCandidate)
	}
	return &contracts.SpreadCandidate{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Long:      contracts.OptionLeg{Symbol: sig.Symbol, Strike: 105, Right: contracts.RightCall, Bid: 4.0, Ask: 4.2},
		Short:     contracts.OptionLeg{Symbol: sig.Symbol, Strike: 110, Right: contracts.RightCall, Bid: 2.0, Ask: 2.1},
		Debit:     205,
		Width:     500,
		Underlying: sig.Underlying,
		ATR:        sig.ATR,
	}, nil
}

type stubGateway struct {
	connected    bool
	reject       map[string]bool
	stillWorking map[string]bool
	workingIDs   map[string]bool
	submitted    []contracts.TradeIntent
	cancelled    []string
	nextID       int
}

func (g *stubGateway) SubmitSpread(_ context.Context, intent contracts.TradeIntent) (contracts.OrderResult, error) {
	g.nextID++
	id := fmt.Sprintf("ord-%d", g.nextID)
	if g.reject[intent.Symbol] {
		return contracts.OrderResult{
			OrderID: id,
			Status:  contracts.StatusRejected,
			Message: "margin check failed",
		}, nil
	}
	g.submitted = append(g.submitted, intent)
	if g.stillWorking[intent.Symbol] {
		if g.workingIDs == nil {
			g.workingIDs = map[string]bool{}
		}
		g.workingIDs[id] = true
		return contracts.OrderResult{OrderID: id, Status: contracts.StatusSubmitted}, nil
	}
	return contracts.OrderResult{
		OrderID:   id,
		Status:    contracts.StatusFilled,
		FilledQty: intent.Quantity,
	}, nil
}

func (g *stubGateway) OrderStatus(_ context.Context, orderID string) (contracts.OrderResult, error) {
	if g.workingIDs[orderID] {
		return contracts.OrderResult{OrderID: orderID, Status: contracts.StatusSubmitted}, nil
	}
	return contracts.OrderResult{OrderID: orderID, Status: contracts.StatusFilled}, nil
}

func (g *stubGateway) CancelOrder(_ context.Context, orderID string) error {
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *stubGateway) Connected(context.Context) bool { return g.connected }

type stubStore struct {
	trades    int
	positions int
	runStates []contracts.DailyRunState
}

func (s *stubStore) SaveTrade(context.Context, contracts.TradeIntent, contracts.OrderResult) error {
	s.trades++
	return nil
}

func (s *stubStore) SavePosition(context.Context, contracts.Position) error {
	s.positions++
	return nil
}

func (s *stubStore) SaveRunState(_ context.Context, state contracts.DailyRunState) error {
	s.runStates = append(s.runStates, state)
	return nil
}

func signalFor(symbol string) contracts.Signal {
	return contracts.Signal{
		Symbol:     symbol,
		Direction:  contracts.DirectionBullPullback,
		Underlying: 100,
		ATR:        2,
	}
}

// afterCutoff is 16:30 New York on a weekday.
var afterCutoff = time.Date(2026, 8, 25, 20, 30, 0, 0, time.UTC)

// beforeCutoff is 13:00 New York the same day.
var beforeCutoff = time.Date(2026, 8, 25, 17, 0, 0, 0, time.UTC)

type fixture struct {
	sched    *Scheduler
	clock    *fakeClock
	symbols  *stubSymbols
	scanner  *stubScanner
	selector *stubSelector
	gateway  *stubGateway
	store    *stubStore
	book     *position.Book
}

func newFixture(cfg *strategy.Config, signals []contracts.Signal) *fixture {
	f := &fixture{
		clock:    &fakeClock{now: afterCutoff},
		symbols:  &stubSymbols{symbols: []string{"AAPL", "MSFT", "NVDA"}},
		scanner:  &stubScanner{signals: signals},
		selector: &stubSelector{},
		gateway:  &stubGateway{connected: true},
		store:    &stubStore{},
		book:     position.NewBook(),
	}
	f.sched = NewScheduler(cfg, f.symbols, stubFilter{}, f.scanner, f.selector,
		f.gateway, f.book, f.store, f.clock, logger.NewNop())
	f.sched.retryDelay = 0
	f.sched.pollDelay = 0
	return f
}

func TestGateWaitsForCutoff(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL")})
	f.clock.now = beforeCutoff

	require.NoError(t, f.sched.RunIfDue(context.Background()))

	assert.Zero(t, f.scanner.calls)
	assert.Equal(t, StateIdle, f.sched.Phase())
	assert.False(t, f.sched.RunState().RanToday(beforeCutoff))
}

func TestGateRunsOncePerDay(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL")})

	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Equal(t, 1, f.scanner.calls)
	assert.Equal(t, StateDone, f.sched.Phase())
	assert.Len(t, f.gateway.submitted, 1)
	assert.True(t, f.book.Has("AAPL"))

	// second tick the same day must not re-scan or re-submit
	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Equal(t, 1, f.scanner.calls)
	assert.Len(t, f.gateway.submitted, 1)

	// next day the gate opens again
	f.clock.now = afterCutoff.AddDate(0, 0, 1)
	f.book = position.NewBook() // AAPL closed overnight
	f.sched.book = f.book
	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Equal(t, 2, f.scanner.calls)
}

func TestDailyTradeCap(t *testing.T) {
	cfg := strategy.Default()
	cfg.Risk.MaxDailyTrades = 2

	f := newFixture(cfg, []contracts.Signal{
		signalFor("AAPL"), signalFor("MSFT"), signalFor("NVDA"),
	})

	require.NoError(t, f.sched.RunIfDue(context.Background()))

	assert.Len(t, f.gateway.submitted, 2)
	assert.Equal(t, 2, f.sched.RunState().TradesEntered)
	assert.False(t, f.book.Has("NVDA"))

	// the third candidate is never submitted later the same day
	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Len(t, f.gateway.submitted, 2)
}

func TestPositionCap(t *testing.T) {
	cfg := strategy.Default()
	cfg.Risk.MaxPositions = 1

	f := newFixture(cfg, []contracts.Signal{signalFor("AAPL"), signalFor("MSFT")})

	require.NoError(t, f.sched.RunIfDue(context.Background()))

	assert.Len(t, f.gateway.submitted, 1)
	assert.Equal(t, 1, f.book.Len())
}

func TestGatewayOutageHoldsState(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL")})
	f.gateway.connected = false

	err := f.sched.RunIfDue(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrGatewayUnavailable)
	assert.Zero(t, f.scanner.calls)
	assert.False(t, f.sched.RunState().RanToday(afterCutoff))

	// same cycle resumes when the gateway comes back
	f.gateway.connected = true
	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Equal(t, 1, f.scanner.calls)
	assert.True(t, f.sched.RunState().RanToday(afterCutoff))
}

func TestRejectedOrderAbandonedForDay(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL"), signalFor("MSFT")})
	f.gateway.reject = map[string]bool{"AAPL": true}

	require.NoError(t, f.sched.RunIfDue(context.Background()))

	// AAPL rejected and abandoned; MSFT still entered
	assert.False(t, f.book.Has("AAPL"))
	assert.True(t, f.book.Has("MSFT"))
	assert.Equal(t, 1, f.sched.RunState().TradesEntered)
}

func TestOpenPositionSkipsSignal(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL")})
	require.NoError(t, f.book.Open(contracts.Position{Symbol: "AAPL", Direction: contracts.DirectionBullPullback}))

	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Empty(t, f.gateway.submitted)
	assert.Equal(t, 0, f.sched.RunState().TradesEntered)
}

func TestNoQualifyingSpreadIsNotFatal(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL"), signalFor("MSFT")})
	f.selector.noQualify = map[string]bool{"AAPL": true}

	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.True(t, f.book.Has("MSFT"))
	assert.False(t, f.book.Has("AAPL"))
	assert.Equal(t, StateDone, f.sched.Phase())
}

func TestEntryHookFires(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL")})

	var hooked []string
	f.sched.SetEntryHook(func(_ context.Context, p contracts.Position) {
		hooked = append(hooked, p.Symbol)
	})

	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Equal(t, []string{"AAPL"}, hooked)
}

// blockingScanner parks inside Scan until released, holding the cycle
// mid-flight for concurrency tests.
type blockingScanner struct {
	signals []contracts.Signal
	calls   int
	started chan struct{}
	release chan struct{}
}

func (s *blockingScanner) Scan(context.Context, []contracts.Candidate) ([]contracts.Signal, error) {
	s.calls++
	s.started <- struct{}{}
	<-s.release
	return s.signals, nil
}

func TestOverlappingTicksRunOneCycle(t *testing.T) {
	cfg := strategy.Default()
	cfg.Risk.MaxDailyTrades = 1

	scan := &blockingScanner{
		signals: []contracts.Signal{signalFor("AAPL")},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	clock := &fakeClock{now: afterCutoff}
	gateway := &stubGateway{connected: true}
	sched := NewScheduler(cfg, &stubSymbols{symbols: []string{"AAPL"}}, stubFilter{},
		scan, &stubSelector{}, gateway, position.NewBook(), &stubStore{}, clock, logger.NewNop())
	sched.retryDelay = 0
	sched.pollDelay = 0

	firstDone := make(chan error, 1)
	go func() { firstDone <- sched.RunIfDue(context.Background()) }()
	<-scan.started

	// a second tick arriving while the first cycle is mid-scan must
	// not start another cycle
	require.NoError(t, sched.RunIfDue(context.Background()))
	assert.Equal(t, StateScanning, sched.Phase())

	close(scan.release)
	require.NoError(t, <-firstDone)

	assert.Equal(t, 1, scan.calls)
	assert.Len(t, gateway.submitted, 1)
	assert.Equal(t, StateDone, sched.Phase())
}

func TestScanFailureReleasesGate(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL")})
	f.symbols.failures = 1

	require.Error(t, f.sched.RunIfDue(context.Background()))
	assert.Equal(t, StateIdle, f.sched.Phase())
	assert.False(t, f.sched.RunState().RanToday(afterCutoff))

	// the next tick retries the same day
	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Equal(t, StateDone, f.sched.Phase())
	assert.Len(t, f.gateway.submitted, 1)
}

func TestUnfilledOrderCancelled(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL"), signalFor("MSFT")})
	f.gateway.stillWorking = map[string]bool{"AAPL": true}

	require.NoError(t, f.sched.RunIfDue(context.Background()))

	// the AAPL order never filled: it is cancelled at the venue, never
	// recorded as a position, and never counted against the cap
	require.Len(t, f.gateway.cancelled, 1)
	assert.False(t, f.book.Has("AAPL"))
	assert.True(t, f.book.Has("MSFT"))
	assert.Equal(t, 1, f.sched.RunState().TradesEntered)
}

func TestRestoreStateMarksDoneDay(t *testing.T) {
	f := newFixture(strategy.Default(), []contracts.Signal{signalFor("AAPL")})
	f.sched.RestoreState(contracts.DailyRunState{}.Advance(afterCutoff, 2))

	require.NoError(t, f.sched.RunIfDue(context.Background()))
	assert.Zero(t, f.scanner.calls)
	assert.Equal(t, StateDone, f.sched.Phase())
	assert.Equal(t, 2, f.sched.RunState().TradesEntered)
}

func TestRestoreStateUsesVenueDay(t *testing.T) {
	f := newFixture(strategy.Default(), nil)
	// 01:00 UTC is 21:00 the previous evening in New York
	f.clock.now = time.Date(2026, 8, 26, 1, 0, 0, 0, time.UTC)
	f.sched.RestoreState(contracts.DailyRunState{}.Advance(afterCutoff, 1))

	assert.Equal(t, StateDone, f.sched.Phase())
}
