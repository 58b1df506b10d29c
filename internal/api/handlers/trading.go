package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/position"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// ExitLog reads historical exit events.
type ExitLog interface {
	RecentExits(ctx context.Context, limit int) ([]contracts.ExitEvent, error)
}

// SymbolSource lists the trading universe.
type SymbolSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// TradingHandler serves the position book, exit history and universe.
type TradingHandler struct {
	cfg     *strategy.Config
	book    *position.Book
	exits   ExitLog
	symbols SymbolSource
	logger  *logger.Logger
}

// NewTradingHandler creates the trading handler.
func NewTradingHandler(cfg *strategy.Config, book *position.Book, exits ExitLog, symbols SymbolSource, log *logger.Logger) *TradingHandler {
	return &TradingHandler{
		cfg:     cfg,
		book:    book,
		exits:   exits,
		symbols: symbols,
		logger:  log,
	}
}

// positionView decorates a position with its computed exit levels.
type positionView struct {
	contracts.Position
	StopPrice float64 `json:"stop_price"`
}

// GetPositions returns every position in the book with its stop level.
// GET /api/trading/positions
func (h *TradingHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.book.List()

	views := make([]positionView, len(positions))
	for i, p := range positions {
		views[i] = positionView{
			Position:  p,
			StopPrice: p.StopPrice(h.cfg.Risk.StopLossATRMult),
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(views),
		"positions": views,
	})
}

// GetExits returns the most recent exit events.
// GET /api/trading/exits?limit=20
func (h *TradingHandler) GetExits(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	events, err := h.exits.RecentExits(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load exit history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve exits")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(events),
		"exits": events,
	})
}

// GetUniverse returns the current constituent list.
// GET /api/universe
func (h *TradingHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.symbols.Symbols(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load universe")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve universe")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(symbols),
		"symbols": symbols,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
