package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/pkg/database"
)

// Repository persists trades, positions and the daily run state. The
// position book stays authoritative in memory; rows here exist so a
// restart can rebuild the book and the trade log survives the process.
type Repository struct {
	db *database.DB
}

// NewRepository creates the executor repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// SaveTrade appends one entry order to the trade log.
func (r *Repository) SaveTrade(ctx context.Context, intent contracts.TradeIntent, result contracts.OrderResult) error {
	legs, err := json.Marshal([]contracts.OptionLeg{intent.Long, intent.Short})
	if err != nil {
		return fmt.Errorf("marshal legs: %w", err)
	}

	query := `
		INSERT INTO trading.trades (
			symbol, direction, legs, quantity, limit_debit,
			order_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		intent.Symbol, string(intent.Direction), legs, intent.Quantity,
		intent.LimitDebit, result.OrderID, string(result.Status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// SavePosition upserts an open position snapshot.
func (r *Repository) SavePosition(ctx context.Context, p contracts.Position) error {
	longLeg, err := json.Marshal(p.Long)
	if err != nil {
		return fmt.Errorf("marshal long leg: %w", err)
	}
	shortLeg, err := json.Marshal(p.Short)
	if err != nil {
		return fmt.Errorf("marshal short leg: %w", err)
	}

	query := `
		INSERT INTO trading.positions (
			symbol, direction, long_leg, short_leg, quantity,
			entry_price, entry_atr, entry_debit, entry_date,
			state, long_closed, short_closed,
			price_target, target_kind, trailing_stop, trailing_extreme,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (symbol) DO UPDATE SET
			state = EXCLUDED.state,
			long_closed = EXCLUDED.long_closed,
			short_closed = EXCLUDED.short_closed,
			price_target = EXCLUDED.price_target,
			target_kind = EXCLUDED.target_kind,
			trailing_stop = EXCLUDED.trailing_stop,
			trailing_extreme = EXCLUDED.trailing_extreme,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Pool.Exec(ctx, query,
		p.Symbol, string(p.Direction), longLeg, shortLeg, p.Quantity,
		p.EntryPrice, p.EntryATR, p.EntryDebit, p.EntryDate,
		string(p.State), p.LongClosed, p.ShortClosed,
		p.PriceTarget, string(p.TargetKind), p.TrailingStop, p.TrailingExtreme,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save position %s: %w", p.Symbol, err)
	}
	return nil
}

// DeletePosition removes a fully closed position row.
func (r *Repository) DeletePosition(ctx context.Context, symbol string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM trading.positions WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	return nil
}

// OpenPositions loads every stored position for book recovery at
// startup.
func (r *Repository) OpenPositions(ctx context.Context) ([]contracts.Position, error) {
	query := `
		SELECT symbol, direction, long_leg, short_leg, quantity,
		       entry_price, entry_atr, entry_debit, entry_date,
		       state, long_closed, short_closed,
		       price_target, target_kind, trailing_stop, trailing_extreme
		FROM trading.positions
		ORDER BY symbol
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]contracts.Position, 0)
	for rows.Next() {
		var p contracts.Position
		var direction, state, targetKind string
		var longLeg, shortLeg []byte

		err := rows.Scan(
			&p.Symbol, &direction, &longLeg, &shortLeg, &p.Quantity,
			&p.EntryPrice, &p.EntryATR, &p.EntryDebit, &p.EntryDate,
			&state, &p.LongClosed, &p.ShortClosed,
			&p.PriceTarget, &targetKind, &p.TrailingStop, &p.TrailingExtreme,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}

		if err := json.Unmarshal(longLeg, &p.Long); err != nil {
			return nil, fmt.Errorf("decode long leg %s: %w", p.Symbol, err)
		}
		if err := json.Unmarshal(shortLeg, &p.Short); err != nil {
			return nil, fmt.Errorf("decode short leg %s: %w", p.Symbol, err)
		}
		p.Direction = contracts.Direction(direction)
		p.State = contracts.PositionState(state)
		p.TargetKind = contracts.TargetType(targetKind)

		positions = append(positions, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate positions: %w", rows.Err())
	}
	return positions, nil
}

// SaveRunState persists the daily gate state. Single row keyed by a
// constant id.
func (r *Repository) SaveRunState(ctx context.Context, state contracts.DailyRunState) error {
	query := `
		INSERT INTO trading.run_state (id, last_run_date, trades_entered, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			last_run_date = EXCLUDED.last_run_date,
			trades_entered = EXCLUDED.trades_entered,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(ctx, query, state.LastRunDate, state.TradesEntered, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	return nil
}

// LoadRunState restores the daily gate state; a missing row is a fresh
// zero state, not an error.
func (r *Repository) LoadRunState(ctx context.Context) (contracts.DailyRunState, error) {
	var state contracts.DailyRunState
	query := `SELECT last_run_date, trades_entered FROM trading.run_state WHERE id = 1`
	err := r.db.Pool.QueryRow(ctx, query).Scan(&state.LastRunDate, &state.TradesEntered)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.DailyRunState{}, nil
	}
	if err != nil {
		return contracts.DailyRunState{}, fmt.Errorf("load run state: %w", err)
	}
	return state, nil
}

// SaveExit appends an exit event to the trade log.
func (r *Repository) SaveExit(ctx context.Context, event contracts.ExitEvent) error {
	query := `
		INSERT INTO trading.exits (
			symbol, direction, reason, entry_price, exit_price, partial, triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		event.Symbol, string(event.Direction), string(event.Reason),
		event.EntryPrice, event.CurrentPrice, event.Partial, event.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("save exit %s: %w", event.Symbol, err)
	}
	return nil
}

// RecentExits returns the latest exit events, newest first.
func (r *Repository) RecentExits(ctx context.Context, limit int) ([]contracts.ExitEvent, error) {
	query := `
		SELECT symbol, direction, reason, entry_price, exit_price, partial, triggered_at
		FROM trading.exits
		ORDER BY triggered_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query exits: %w", err)
	}
	defer rows.Close()

	events := make([]contracts.ExitEvent, 0, limit)
	for rows.Next() {
		var e contracts.ExitEvent
		var direction, reason string
		if err := rows.Scan(&e.Symbol, &direction, &reason, &e.EntryPrice, &e.CurrentPrice, &e.Partial, &e.TriggeredAt); err != nil {
			return nil, fmt.Errorf("scan exit: %w", err)
		}
		e.Direction = contracts.Direction(direction)
		e.Reason = contracts.ExitReason(reason)
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate exits: %w", rows.Err())
	}
	return events, nil
}
