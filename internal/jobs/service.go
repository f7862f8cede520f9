// Package jobs combines the durable job row with the Redis scheduling view.
package jobs

import (
	"context"
	"fmt"
	"time"

	"artist-sync/internal/models"
	"artist-sync/internal/queue"
	"artist-sync/internal/store"
	"artist-sync/internal/telemetry"
)

// Options adjust a single enqueue.
type Options struct {
	Priority    models.Priority
	Delay       time.Duration
	MaxAttempts int
}

// Service durably appends jobs and pushes them into their queue. It is the
// single enqueue path used by the API, the orchestrator, and stage
// processors chaining follow-up stages.
type Service struct {
	store    *store.Store
	registry *queue.Registry
}

func NewService(st *store.Store, registry *queue.Registry) *Service {
	return &Service{store: st, registry: registry}
}

// Enqueue writes the job row, then makes it schedulable. Delayed jobs land
// in the scheduled set and become eligible at their delay-until time.
func (s *Service) Enqueue(ctx context.Context, queueName string, payload map[string]any, opts Options) (models.Job, error) {
	runAt := time.Now()
	if opts.Delay > 0 {
		runAt = runAt.Add(opts.Delay)
	}
	job, err := s.store.CreateJob(ctx, store.CreateJobParams{
		Queue:       queueName,
		Priority:    opts.Priority,
		Payload:     payload,
		RunAt:       runAt,
		MaxAttempts: opts.MaxAttempts,
	})
	if err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}

	q := s.registry.Queue(queueName)
	if opts.Delay > 0 {
		err = q.Schedule(ctx, job.ID, job.Priority, runAt)
	} else {
		err = q.Enqueue(ctx, job.ID, job.Priority, runAt)
	}
	if err != nil {
		msg := err.Error()
		_ = s.store.MarkFailed(ctx, job.ID, 0, "enqueue: "+msg)
		return models.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	telemetry.EnqueueCounter.WithLabelValues(queueName).Inc()
	return job, nil
}

// Requeue resets a failed job and pushes it back into its queue.
func (s *Service) Requeue(ctx context.Context, jobID string) (models.Job, error) {
	job, err := s.store.RequeueFailed(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if err := s.registry.Queue(job.Queue).Enqueue(ctx, job.ID, job.Priority, job.NextRunAt); err != nil {
		return models.Job{}, fmt.Errorf("requeue job: %w", err)
	}
	telemetry.EnqueueCounter.WithLabelValues(job.Queue).Inc()
	return job, nil
}
