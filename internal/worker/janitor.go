package worker

import (
	"context"
	"time"

	"artist-sync/internal/logging"
)

// Purger deletes finished jobs past their retention windows.
type Purger interface {
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeFailed(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Janitor periodically purges completed jobs after a short retention window
// and permanently failed jobs after a longer one kept for inspection.
type Janitor struct {
	store              Purger
	interval           time.Duration
	completedRetention time.Duration
	failedRetention    time.Duration
}

func NewJanitor(store Purger, interval, completedRetention, failedRetention time.Duration) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{
		store:              store,
		interval:           interval,
		completedRetention: completedRetention,
		failedRetention:    failedRetention,
	}
}

// Run blocks until ctx cancels.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		completed, err := j.store.PurgeCompleted(ctx, j.completedRetention)
		if err != nil {
			logging.Error().Err(err).Msg("purge completed jobs")
		}
		failed, err := j.store.PurgeFailed(ctx, j.failedRetention)
		if err != nil {
			logging.Error().Err(err).Msg("purge failed jobs")
		}
		if completed+failed > 0 {
			logging.Info().Int64("completed", completed).Int64("failed", failed).Msg("purged finished jobs")
		}
	}
}
