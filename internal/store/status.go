package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"artist-sync/internal/models"
)

// Import status records are keyed by artist id, created when an orchestration
// starts, mutated by the worker owning the current stage, and read by any
// poller. They are never deleted; the next run overwrites the same key.

// InitImportStatus resets the record for a fresh run with one pending stage
// (the profile stage itself).
func (s *Store) InitImportStatus(ctx context.Context, key, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_statuses (key, stage, percent, message, error, pending_stages, updated_at)
		VALUES ($1, $2, 0, $3, NULL, 1, NOW())
		ON CONFLICT (key) DO UPDATE SET
			stage = $2, percent = 0, message = $3, error = NULL, pending_stages = 1, updated_at = NOW()
	`, key, models.StageInitializing, message)
	return err
}

// ReportImportProgress updates stage, percent, and message.
func (s *Store) ReportImportProgress(ctx context.Context, key, stage string, percent int, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE import_statuses SET stage = $2, percent = $3, message = $4, updated_at = NOW()
		WHERE key = $1
	`, key, stage, percent, message)
	return err
}

// FailImport marks the run failed with the terminal error. Earlier upserts
// stay in place; partial import beats no import.
func (s *Store) FailImport(ctx context.Context, key, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_statuses SET stage = $2, error = $3, updated_at = NOW()
		WHERE key = $1
	`, key, models.StageFailed, errMsg)
	return err
}

// AddPendingStages bumps the branch counter when a stage enqueues follow-up
// stages that must finish before the run counts as complete.
func (s *Store) AddPendingStages(ctx context.Context, key string, n int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_statuses SET pending_stages = pending_stages + $2, updated_at = NOW()
		WHERE key = $1
	`, key, n)
	return err
}

// CompletePendingStage atomically decrements the branch counter and returns
// the remaining count, so exactly one stage observes zero and finalizes.
func (s *Store) CompletePendingStage(ctx context.Context, key string) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx, `
		UPDATE import_statuses SET pending_stages = GREATEST(pending_stages - 1, 0), updated_at = NOW()
		WHERE key = $1
		RETURNING pending_stages
	`, key).Scan(&remaining)
	if err != nil {
		return 0, fmt.Errorf("complete pending stage: %w", err)
	}
	return remaining, nil
}

// GetImportStatus returns the record for a key.
func (s *Store) GetImportStatus(ctx context.Context, key string) (models.ImportStatus, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, stage, percent, message, error, pending_stages, updated_at
		FROM import_statuses WHERE key = $1
	`, key)

	var st models.ImportStatus
	var errText pgtype.Text
	if err := row.Scan(&st.Key, &st.Stage, &st.Percent, &st.Message, &errText, &st.PendingStages, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ImportStatus{}, fmt.Errorf("import status %s not found: %w", key, err)
		}
		return models.ImportStatus{}, fmt.Errorf("scan import status: %w", err)
	}
	st.Error = textPtr(errText)
	return st, nil
}
