package jobs

import (
	"context"

	"github.com/tkrause/spreadpilot/internal/universe"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// UniverseRefreshJob re-scrapes the index constituent list weekly so
// membership changes show up before the cached copy expires.
type UniverseRefreshJob struct {
	loader *universe.Loader
	logger *logger.Logger
}

// NewUniverseRefreshJob creates the refresh job.
func NewUniverseRefreshJob(loader *universe.Loader, log *logger.Logger) *UniverseRefreshJob {
	return &UniverseRefreshJob{loader: loader, logger: log}
}

func (j *UniverseRefreshJob) Name() string {
	return "universe_refresh"
}

// Schedule fires Monday mornings before the open.
func (j *UniverseRefreshJob) Schedule() string {
	return "0 0 8 * * MON"
}

// Run refreshes the constituent cache.
func (j *UniverseRefreshJob) Run(ctx context.Context) error {
	count, err := j.loader.Refresh(ctx)
	if err != nil {
		return err
	}
	j.logger.WithField("symbols", count).Info("Universe refreshed")
	return nil
}
