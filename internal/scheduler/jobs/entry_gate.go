package jobs

import (
	"context"
	"errors"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/executor"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// EntryGateJob ticks the daily entry scheduler every minute through the
// late afternoon. The scheduler's own gate decides whether a tick
// actually scans; ticks before the cutoff or after the day's run are
// no-ops.
type EntryGateJob struct {
	sched  *executor.Scheduler
	logger *logger.Logger
}

// NewEntryGateJob creates the entry gate job.
func NewEntryGateJob(sched *executor.Scheduler, log *logger.Logger) *EntryGateJob {
	return &EntryGateJob{sched: sched, logger: log}
}

func (j *EntryGateJob) Name() string {
	return "entry_gate"
}

// Schedule fires every minute from 3 PM through 4 PM on weekdays, venue
// local time.
func (j *EntryGateJob) Schedule() string {
	return "0 * 15-16 * * MON-FRI"
}

// Run ticks the gate. A gateway outage is logged and left for the next
// tick rather than burning the scheduler's retries.
func (j *EntryGateJob) Run(ctx context.Context) error {
	err := j.sched.RunIfDue(ctx)
	if errors.Is(err, contracts.ErrGatewayUnavailable) {
		j.logger.Warn("Entry gate waiting for gateway")
		return nil
	}
	return err
}
