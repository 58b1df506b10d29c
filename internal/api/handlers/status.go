package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/tkrause/spreadpilot/internal/executor"
	"github.com/tkrause/spreadpilot/internal/scheduler"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// GatewayProbe reports broker gateway reachability.
type GatewayProbe interface {
	Connected(ctx context.Context) bool
}

// StatusHandler reports the daily run state, job schedule health and
// gateway connectivity.
type StatusHandler struct {
	sched   *executor.Scheduler
	cron    *scheduler.Scheduler
	gateway GatewayProbe
	logger  *logger.Logger
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(sched *executor.Scheduler, cron *scheduler.Scheduler, gateway GatewayProbe, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		sched:   sched,
		cron:    cron,
		gateway: gateway,
		logger:  log,
	}
}

// Get returns the operational snapshot.
// GET /api/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := h.sched.RunState()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"phase":             string(h.sched.Phase()),
		"last_run_date":     state.LastRunDate,
		"trades_entered":    state.TradesEntered,
		"gateway_connected": h.gateway.Connected(r.Context()),
		"jobs":              h.cron.Status(),
		"time":              time.Now().UTC(),
	})
}
