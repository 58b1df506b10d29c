package position

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tkrause/spreadpilot/internal/contracts"
)

// Book is the in-memory set of open positions, one per symbol. A single
// mutex guards every access: the entry scheduler and the exit monitor
// run on separate goroutines and both mutate the book.
type Book struct {
	mu        sync.Mutex
	positions map[string]*contracts.Position
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{
		positions: make(map[string]*contracts.Position),
	}
}

// Open adds a freshly filled position. One position per symbol: a
// second entry on the same underlying is a bug upstream.
func (b *Book) Open(p contracts.Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[p.Symbol]; exists {
		return fmt.Errorf("position already open for %s", p.Symbol)
	}
	p.State = contracts.PositionStateOpen
	b.positions[p.Symbol] = &p
	return nil
}

// Get returns a copy of the position for a symbol.
func (b *Book) Get(symbol string) (contracts.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return contracts.Position{}, false
	}
	return *p, true
}

// List returns copies of all positions, sorted by symbol.
func (b *Book) List() []contracts.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]contracts.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of positions in the book, whatever their
// state. An EXITING position still consumes a slot until both legs
// confirm closed.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

// Has reports whether a symbol has a position in the book.
func (b *Book) Has(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.positions[symbol]
	return ok
}

// MarkExiting flips a position to EXITING once its close orders are
// submitted, so the monitor never submits a second round.
func (b *Book) MarkExiting(symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return fmt.Errorf("no position for %s", symbol)
	}
	p.State = contracts.PositionStateExiting
	return nil
}

// MarkLegClosed records a confirmed single-leg close. The position
// leaves the book only when both legs have confirmed; a one-leg
// remainder stays visible as EXITING.
func (b *Book) MarkLegClosed(symbol string, long bool) (contracts.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return contracts.Position{}, fmt.Errorf("no position for %s", symbol)
	}

	if long {
		p.LongClosed = true
	} else {
		p.ShortClosed = true
	}

	if p.BothLegsClosed() {
		p.State = contracts.PositionStateClosed
		delete(b.positions, symbol)
	}
	return *p, nil
}

// SetTarget stores a profit target on an open position.
func (b *Book) SetTarget(symbol string, target float64, kind contracts.TargetType) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return fmt.Errorf("no position for %s", symbol)
	}
	p.PriceTarget = target
	p.TargetKind = kind
	return nil
}

// SetTrailing updates the trailing stop level and the favorable price
// extreme it trails.
func (b *Book) SetTrailing(symbol string, stop, extreme float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return fmt.Errorf("no position for %s", symbol)
	}
	p.TrailingStop = stop
	p.TrailingExtreme = extreme
	return nil
}

// Restore loads positions recovered from storage at startup.
func (b *Book) Restore(positions []contracts.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range positions {
		cp := p
		b.positions[p.Symbol] = &cp
	}
}
