package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/position"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/internal/universe"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// State names the scheduler's place in the daily cycle.
type State string

const (
	StateIdle     State = "IDLE"
	StateScanning State = "SCANNING"
	StateEntering State = "ENTERING"
	StateDone     State = "DONE"
)

// Clock supplies the current time; injected so tests pin the gate to a
// known instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Gateway is the order-execution surface the scheduler needs.
type Gateway interface {
	SubmitSpread(ctx context.Context, intent contracts.TradeIntent) (contracts.OrderResult, error)
	OrderStatus(ctx context.Context, orderID string) (contracts.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	Connected(ctx context.Context) bool
}

// SymbolSource lists the tradable universe tickers.
type SymbolSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// CandidateFilter narrows tickers to qualifying candidates.
type CandidateFilter interface {
	Build(ctx context.Context, symbols []string) (*universe.Result, error)
}

// SignalScanner produces directional signals from candidates.
type SignalScanner interface {
	Scan(ctx context.Context, candidates []contracts.Candidate) ([]contracts.Signal, error)
}

// SpreadPicker builds a qualifying spread from a signal.
type SpreadPicker interface {
	Select(ctx context.Context, sig contracts.Signal) (*contracts.SpreadCandidate, error)
}

// Store is the persistence surface the scheduler writes through. All
// methods are best-effort from the scheduler's point of view: a failed
// write is logged, never blocks trading.
type Store interface {
	SaveTrade(ctx context.Context, intent contracts.TradeIntent, result contracts.OrderResult) error
	SavePosition(ctx context.Context, p contracts.Position) error
	SaveRunState(ctx context.Context, state contracts.DailyRunState) error
}

// EntryHook runs after a position is opened: alerting and feed
// subscription hang off it.
type EntryHook func(ctx context.Context, p contracts.Position)

const (
	submitMaxRetries = 3
	fillPollAttempts = 5
)

// Scheduler owns the once-a-day entry cycle: gate check, scan,
// selection, submission, and the DailyRunState that makes the cycle
// idempotent within a trading day.
type Scheduler struct {
	cfg      *strategy.Config
	symbols  SymbolSource
	filter   CandidateFilter
	scanner  SignalScanner
	selector SpreadPicker
	gateway  Gateway
	book     *position.Book
	store    Store
	clock    Clock
	onEntry  EntryHook
	logger   *logger.Logger

	// backoff pacing between submit retries and fill polls; shortened
	// to zero in tests
	retryDelay time.Duration
	pollDelay  time.Duration

	mu    sync.Mutex
	state contracts.DailyRunState
	phase State
}

// NewScheduler wires the entry pipeline.
func NewScheduler(
	cfg *strategy.Config,
	symbols SymbolSource,
	filter CandidateFilter,
	scanner SignalScanner,
	selector SpreadPicker,
	gateway Gateway,
	book *position.Book,
	store Store,
	clock Clock,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		symbols:    symbols,
		filter:     filter,
		scanner:    scanner,
		selector:   selector,
		gateway:    gateway,
		book:       book,
		store:      store,
		clock:      clock,
		logger:     log,
		retryDelay: 2 * time.Second,
		pollDelay:  2 * time.Second,
		phase:      StateIdle,
	}
}

// SetEntryHook registers the post-entry callback.
func (s *Scheduler) SetEntryHook(hook EntryHook) {
	s.onEntry = hook
}

// RestoreState seeds the gate state from storage at startup.
func (s *Scheduler) RestoreState(state contracts.DailyRunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state.RanToday(s.clock.Now().In(s.cfg.Location())) {
		s.phase = StateDone
	}
}

// RunState returns a copy of the current gate state.
func (s *Scheduler) RunState() contracts.DailyRunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Phase returns the scheduler's current phase.
func (s *Scheduler) Phase() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// RunIfDue fires the entry cycle when the venue-local cutoff has
// passed and today has not run yet. Safe to call every minute: the
// run-date guard makes it idempotent, and connectivity loss leaves the
// state untouched so the same cycle resumes when the gateway returns.
func (s *Scheduler) RunIfDue(ctx context.Context) error {
	now := s.clock.Now().In(s.cfg.Location())

	s.mu.Lock()
	if s.state.RanToday(now) {
		if s.phase != StateDone {
			s.phase = StateDone
		}
		s.mu.Unlock()
		return nil
	}
	// a new day resets the phase left over from yesterday
	if s.phase == StateDone {
		s.phase = StateIdle
	}
	if now.Before(s.cfg.ScanCutoff(now)) {
		s.mu.Unlock()
		return nil
	}
	// a cycle started by an earlier tick may still be running; only an
	// idle gate may claim the day
	if s.phase != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.phase = StateScanning
	s.mu.Unlock()

	if !s.gateway.Connected(ctx) {
		s.setPhase(StateIdle)
		s.logger.Warn("Entry cycle deferred, gateway unreachable")
		return fmt.Errorf("entry gate: %w", contracts.ErrGatewayUnavailable)
	}

	return s.runCycle(ctx, now)
}

// runCycle executes Scanning -> Entering -> Done. The caller has
// already claimed StateScanning under the lock.
func (s *Scheduler) runCycle(ctx context.Context, now time.Time) error {
	s.logger.WithField("date", now.Format("2006-01-02")).Info("Entry cycle started")

	candidates, err := s.scanPhase(ctx)
	if err != nil {
		// release the claim so the next tick retries the same day
		s.setPhase(StateIdle)
		return err
	}

	s.setPhase(StateEntering)
	entered := s.enterPhase(ctx, candidates)

	s.mu.Lock()
	s.state = s.state.Advance(now, entered)
	s.phase = StateDone
	state := s.state
	s.mu.Unlock()

	if err := s.store.SaveRunState(ctx, state); err != nil {
		s.logger.WithError(err).Error("Failed to persist run state")
	}

	s.logger.WithFields(map[string]interface{}{
		"date":    now.Format("2006-01-02"),
		"entered": entered,
	}).Info("Entry cycle complete")
	return nil
}

// scanPhase runs universe -> scan -> spread selection and returns the
// qualifying candidates in scan order.
func (s *Scheduler) scanPhase(ctx context.Context) ([]contracts.SpreadCandidate, error) {
	tickers, err := s.symbols.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("universe symbols: %w", err)
	}

	filtered, err := s.filter.Build(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("universe filter: %w", err)
	}

	signals, err := s.scanner.Scan(ctx, filtered.Candidates)
	if err != nil {
		return nil, fmt.Errorf("pattern scan: %w", err)
	}

	spreads := make([]contracts.SpreadCandidate, 0, len(signals))
	for _, sig := range signals {
		if s.book.Has(sig.Symbol) {
			s.logger.WithField("symbol", sig.Symbol).Debug("Signal skipped, position already open")
			continue
		}

		candidate, err := s.selector.Select(ctx, sig)
		if err != nil {
			if errors.Is(err, contracts.ErrNoQualifyingCandidate) || errors.Is(err, contracts.ErrDataUnavailable) {
				s.logger.WithField("symbol", sig.Symbol).WithError(err).Debug("No tradable spread for signal")
				continue
			}
			return nil, err
		}
		spreads = append(spreads, *candidate)
	}
	return spreads, nil
}

// enterPhase submits candidates until the daily or position cap stops
// it, and returns how many trades were entered.
func (s *Scheduler) enterPhase(ctx context.Context, candidates []contracts.SpreadCandidate) int {
	// the counter is per trading day; the run-date guard means this
	// cycle is the first of the day
	entered := 0

	for _, candidate := range candidates {
		if entered >= s.cfg.Risk.MaxDailyTrades {
			s.logger.WithField("cap", s.cfg.Risk.MaxDailyTrades).Info("Daily trade cap reached")
			break
		}
		if s.book.Len() >= s.cfg.Risk.MaxPositions {
			s.logger.WithField("cap", s.cfg.Risk.MaxPositions).Info("Position cap reached")
			break
		}

		if err := s.enterOne(ctx, candidate); err != nil {
			s.logger.WithField("symbol", candidate.Symbol).WithError(err).Error("Entry abandoned")
			continue
		}
		entered++
	}
	return entered
}

// enterOne submits a single spread with bounded retries and opens the
// position once the fill confirms.
func (s *Scheduler) enterOne(ctx context.Context, candidate contracts.SpreadCandidate) error {
	intent := contracts.IntentFrom(candidate)

	var result contracts.OrderResult
	var err error
	delay := s.retryDelay
	for attempt := 0; attempt < submitMaxRetries; attempt++ {
		result, err = s.gateway.SubmitSpread(ctx, intent)
		if err == nil && result.Status != contracts.StatusRejected {
			break
		}
		if attempt == submitMaxRetries-1 {
			if err == nil {
				err = fmt.Errorf("order rejected: %s: %w", result.Message, contracts.ErrExecutionFailure)
			}
			return fmt.Errorf("submit %s: %w", intent.Symbol, err)
		}
		s.logger.WithFields(map[string]interface{}{
			"symbol":  intent.Symbol,
			"attempt": attempt + 1,
		}).Warn("Submit failed, retrying")
		s.sleep(ctx, delay)
		delay *= 2
	}

	if err := s.store.SaveTrade(ctx, intent, result); err != nil {
		s.logger.WithError(err).Error("Failed to persist trade")
	}

	filled, err := s.awaitFill(ctx, result)
	if err != nil {
		return err
	}
	if !filled.IsFilled() {
		// an order left working at the venue would fill later with no
		// position record and no stop monitoring; cancel it and abandon
		// the candidate for the day
		if cancelErr := s.gateway.CancelOrder(ctx, filled.OrderID); cancelErr != nil {
			s.logger.WithError(cancelErr).WithFields(map[string]interface{}{
				"symbol":   intent.Symbol,
				"order_id": filled.OrderID,
			}).Error("Cancel of unfilled order failed, manual check required")
		} else {
			s.logger.WithFields(map[string]interface{}{
				"symbol":   intent.Symbol,
				"order_id": filled.OrderID,
			}).Warn("Order unfilled after polling, cancelled")
		}
		return fmt.Errorf("order %s unfilled after polling: %w", filled.OrderID, contracts.ErrExecutionFailure)
	}

	pos := contracts.Position{
		Symbol:     intent.Symbol,
		Direction:  intent.Direction,
		Long:       intent.Long,
		Short:      intent.Short,
		Quantity:   intent.Quantity,
		EntryPrice: intent.Underlying,
		EntryATR:   intent.ATR,
		EntryDebit: candidate.Debit,
		EntryDate:  s.clock.Now(),
		State:      contracts.PositionStateOpen,
	}
	if err := s.book.Open(pos); err != nil {
		return fmt.Errorf("record position %s: %w", pos.Symbol, err)
	}
	if err := s.store.SavePosition(ctx, pos); err != nil {
		s.logger.WithError(err).Error("Failed to persist position")
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol":    pos.Symbol,
		"direction": string(pos.Direction),
		"debit":     pos.EntryDebit,
	}).Info("Position opened")

	if s.onEntry != nil {
		s.onEntry(ctx, pos)
	}
	return nil
}

// awaitFill polls the order until it fills, rejects, or the poll
// budget runs out.
func (s *Scheduler) awaitFill(ctx context.Context, submitted contracts.OrderResult) (contracts.OrderResult, error) {
	if submitted.IsFilled() {
		return submitted, nil
	}

	result := submitted
	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		s.sleep(ctx, s.pollDelay)

		polled, err := s.gateway.OrderStatus(ctx, submitted.OrderID)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", submitted.OrderID).Warn("Fill poll failed")
			continue
		}
		result = polled
		if result.IsFilled() {
			return result, nil
		}
		if result.Status == contracts.StatusRejected || result.Status == contracts.StatusCanceled {
			return result, fmt.Errorf("order %s %s: %w", submitted.OrderID, result.Status, contracts.ErrExecutionFailure)
		}
	}
	return result, nil
}

func (s *Scheduler) setPhase(p State) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
