package worker

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"artist-sync/internal/logging"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/queue"
	"artist-sync/internal/ratelimit"
	"artist-sync/internal/telemetry"
)

// Handler executes one job. A nil error acks the job; a retryable error
// reschedules it with backoff; a permanent error fails it immediately.
type Handler func(ctx context.Context, job models.Job) error

// JobStore is the durable job state the pool needs. *store.Store satisfies it.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	MarkActive(ctx context.Context, id, workerID string) error
	MarkWaiting(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, attempts int, nextRun time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error
}

// Options tune one pool.
type Options struct {
	Concurrency    int
	PollInterval   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	ScheduledBatch int64
	WorkerID       string

	// Throttle, when set, caps total queue throughput across all workers
	// of this queue. Distinct from the per-provider limiters.
	Throttle    *ratelimit.TokenBucket
	ThrottleKey string

	// OnPermanentFailure fires after a job is marked failed for good, so
	// owners can surface the terminal error (e.g. the import status record).
	OnPermanentFailure func(ctx context.Context, job models.Job, err error)
}

// Pool runs a bounded set of workers against one named queue. Each worker
// leases exactly one job at a time and blocks only on the lease poll and,
// inside handlers, on provider rate limiters.
type Pool struct {
	queue   *queue.Queue
	store   JobStore
	handler Handler
	opts    Options
}

func NewPool(q *queue.Queue, st JobStore, handler Handler, opts Options) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 2 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 5 * time.Minute
	}
	if opts.ScheduledBatch <= 0 {
		opts.ScheduledBatch = 100
	}
	if opts.ThrottleKey == "" {
		opts.ThrottleKey = "queue:rl:" + q.Name()
	}
	return &Pool{queue: q, store: st, handler: handler, opts: opts}
}

// Run starts the maintenance loop and workers, blocking until ctx cancels.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.maintain(ctx)
	}()

	for i := 0; i < p.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// maintain promotes due scheduled jobs and reclaims expired leases.
func (p *Pool) maintain(ctx context.Context) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, _ = p.queue.PromoteScheduled(ctx, time.Now(), p.opts.ScheduledBatch)

		if reclaimed, _ := p.queue.RequeueExpired(ctx, time.Now(), 100); len(reclaimed) > 0 {
			telemetry.InFlightGauge.WithLabelValues(p.queue.Name()).Sub(float64(len(reclaimed)))
			for _, id := range reclaimed {
				_ = p.store.MarkWaiting(ctx, id)
			}
			logging.Warn().Str("queue", p.queue.Name()).Int("count", len(reclaimed)).Msg("reclaimed expired leases")
		}

		if depth, err := p.queue.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepth.WithLabelValues(p.queue.Name()).Set(float64(depth))
		}
	}
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if p.opts.Throttle != nil {
			allowed, _, err := p.opts.Throttle.Allow(ctx, p.opts.ThrottleKey)
			if err != nil || !allowed {
				if err == nil {
					telemetry.QueueThrottled.WithLabelValues(p.queue.Name()).Inc()
				}
				p.sleep(ctx)
				continue
			}
		}

		jobID, err := p.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			p.sleep(ctx)
			continue
		}

		p.process(ctx, jobID)
	}
}

func (p *Pool) process(ctx context.Context, jobID string) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		// The row is gone (purged or never committed); drop the lease.
		_ = p.queue.Ack(ctx, jobID)
		return
	}

	_ = p.store.MarkActive(ctx, job.ID, p.opts.WorkerID)
	telemetry.InFlightGauge.WithLabelValues(p.queue.Name()).Inc()
	defer telemetry.InFlightGauge.WithLabelValues(p.queue.Name()).Dec()

	err = p.handler(ctx, job)
	if err == nil {
		_ = p.queue.Ack(ctx, job.ID)
		_ = p.store.MarkCompleted(ctx, job.ID)
		telemetry.JobsCompleted.WithLabelValues(p.queue.Name()).Inc()
		return
	}

	attempts := job.Attempts + 1
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.opts.MaxAttempts
	}

	if !pipeline.Retryable(err) || attempts >= maxAttempts {
		_ = p.store.MarkFailed(ctx, job.ID, attempts, err.Error())
		_ = p.queue.Ack(ctx, job.ID)
		telemetry.JobsFailed.WithLabelValues(p.queue.Name()).Inc()
		if p.opts.OnPermanentFailure != nil {
			p.opts.OnPermanentFailure(ctx, job, err)
		}
		logging.Error().
			Err(err).
			Str("queue", p.queue.Name()).
			Str("job_id", job.ID).
			Int("attempts", attempts).
			Bool("permanent", !pipeline.Retryable(err)).
			Msg("job failed")
		return
	}

	backoff := backoffWithJitter(p.opts.BackoffInitial, p.opts.BackoffMax, attempts)
	if errors.Is(err, pipeline.ErrCircuitOpen) && backoff < p.opts.BackoffInitial {
		// Never probe a tripped breaker before at least one base delay.
		backoff = p.opts.BackoffInitial
	}
	nextRun := time.Now().Add(backoff)
	_ = p.store.MarkRetry(ctx, job.ID, attempts, nextRun, err.Error())
	_ = p.queue.Ack(ctx, job.ID)
	_ = p.queue.Schedule(ctx, job.ID, job.Priority, nextRun)
	telemetry.JobsRetried.WithLabelValues(p.queue.Name()).Inc()
	logging.Warn().
		Err(err).
		Str("queue", p.queue.Name()).
		Str("job_id", job.ID).
		Int("attempts", attempts).
		Dur("backoff", backoff).
		Msg("job retry scheduled")
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.opts.PollInterval):
	}
}

// backoffWithJitter grows base×2^(attempt-1) capped at max, with the upper
// half jittered. Successive attempts never shrink the delay floor.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
