package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"artist-sync/internal/models"
)

// Store wraps pgxpool for Postgres persistence: the job table, the import
// status records, and the target entity tables.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	Queue       string
	Priority    models.Priority
	Payload     map[string]any
	RunAt       time.Time
	MaxAttempts int
}

// CreateJob inserts a durable job row. The row starts waiting, or delayed
// when RunAt lies in the future.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 5
	}
	if !p.Priority.Valid() {
		p.Priority = models.PriorityNormal
	}
	now := time.Now().UTC()
	if p.RunAt.IsZero() {
		p.RunAt = now
	}
	status := models.StatusWaiting
	if p.RunAt.After(now) {
		status = models.StatusDelayed
	}

	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New().String()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, queue, priority, payload, status, attempts, max_attempts, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $8)
	`, id, p.Queue, int(p.Priority), payloadJSON, status, p.MaxAttempts, p.RunAt, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:          id,
		Queue:       p.Queue,
		Priority:    p.Priority,
		Payload:     p.Payload,
		Status:      status,
		Attempts:    0,
		MaxAttempts: p.MaxAttempts,
		NextRunAt:   p.RunAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, queue, priority, payload, status, attempts, max_attempts, next_run_at, leased_by, last_error, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)

	var job models.Job
	var payloadJSON []byte
	var priority int
	var leasedBy, lastErr pgtype.Text

	if err := row.Scan(&job.ID, &job.Queue, &priority, &payloadJSON, &job.Status, &job.Attempts, &job.MaxAttempts, &job.NextRunAt, &leasedBy, &lastErr, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, fmt.Errorf("job %s not found: %w", id, err)
		}
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	job.Priority = models.Priority(priority)
	job.LeasedBy = textPtr(leasedBy)
	job.LastError = textPtr(lastErr)
	return job, nil
}

// MarkActive records the worker holding the lease.
func (s *Store) MarkActive(ctx context.Context, id, workerID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, leased_by = $3, updated_at = NOW() WHERE id = $1
	`, id, models.StatusActive, workerID)
	return err
}

// MarkWaiting returns a reclaimed job to the waiting state.
func (s *Store) MarkWaiting(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, leased_by = NULL, updated_at = NOW() WHERE id = $1
	`, id, models.StatusWaiting)
	return err
}

// MarkCompleted transitions a job to completed. The row stays until the
// janitor purges it after the retention window.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, leased_by = NULL, last_error = NULL, updated_at = NOW() WHERE id = $1
	`, id, models.StatusCompleted)
	return err
}

// MarkRetry schedules the next attempt after a retryable failure.
func (s *Store) MarkRetry(ctx context.Context, id string, attempts int, nextRun time.Time, lastErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = $3, next_run_at = $4, last_error = $5, leased_by = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusDelayed, attempts, nextRun, lastErr)
	return err
}

// MarkFailed fails a job permanently. Retained for inspection until the
// failed-retention window elapses.
func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = $3, last_error = $4, leased_by = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusFailed, attempts, lastErr)
	return err
}

// RequeueFailed resets a failed job for another round of attempts. Used by
// the operator-facing requeue endpoint.
func (s *Store) RequeueFailed(ctx context.Context, id string) (models.Job, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = 0, next_run_at = NOW(), last_error = NULL, leased_by = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusWaiting, models.StatusFailed)
	if err != nil {
		return models.Job{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Job{}, fmt.Errorf("job %s is not in a failed state", id)
	}
	return s.GetJob(ctx, id)
}

// QueueStateCount is one (queue, status) bucket for introspection.
type QueueStateCount struct {
	Queue  string `json:"queue"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// CountJobsByState groups job counts by queue and status.
func (s *Store) CountJobsByState(ctx context.Context) ([]QueueStateCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue, status, COUNT(*) FROM jobs GROUP BY queue, status ORDER BY queue, status
	`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	var out []QueueStateCount
	for rows.Next() {
		var c QueueStateCount
		if err := rows.Scan(&c.Queue, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PurgeCompleted deletes completed jobs older than the retention window.
func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs WHERE status = $1 AND updated_at < $2
	`, models.StatusCompleted, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeFailed deletes permanently failed jobs past the longer window.
func (s *Store) PurgeFailed(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs WHERE status = $1 AND updated_at < $2
	`, models.StatusFailed, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
