package importer

import (
	"context"

	"artist-sync/internal/logging"
	"artist-sync/internal/models"
)

// StatusStore persists the poller-visible import status record.
// *store.Store satisfies it.
type StatusStore interface {
	InitImportStatus(ctx context.Context, key, message string) error
	ReportImportProgress(ctx context.Context, key, stage string, percent int, message string) error
	FailImport(ctx context.Context, key, errMsg string) error
	AddPendingStages(ctx context.Context, key string, n int) error
	CompletePendingStage(ctx context.Context, key string) (int, error)
	GetImportStatus(ctx context.Context, key string) (models.ImportStatus, error)
}

// Tracker reports multi-stage progress for one import run. Progress writes
// are best-effort; a failed write never fails the stage.
type Tracker struct {
	store StatusStore
}

func NewTracker(store StatusStore) *Tracker {
	return &Tracker{store: store}
}

// Begin resets the record for a fresh run with the first stage pending.
func (t *Tracker) Begin(ctx context.Context, key, message string) error {
	return t.store.InitImportStatus(ctx, key, message)
}

// Report updates stage, percent, and message.
func (t *Tracker) Report(ctx context.Context, key, stage string, percent int, message string) {
	if err := t.store.ReportImportProgress(ctx, key, stage, percent, message); err != nil {
		logging.Warn().Err(err).Str("key", key).Str("stage", stage).Msg("report progress")
	}
}

// Expect registers n follow-up stages that must finish before completion.
// Call it only after the follow-up jobs are enqueued: a stage attempt that
// fails and retries must not leave expectations for jobs that never made
// it onto the queue, or the counter can never drain.
func (t *Tracker) Expect(ctx context.Context, key string, n int) {
	if err := t.store.AddPendingStages(ctx, key, n); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("add pending stages")
	}
}

// StageDone marks the calling stage finished. The stage that drains the
// counter flips the record to completed at 100%.
func (t *Tracker) StageDone(ctx context.Context, key string) {
	remaining, err := t.store.CompletePendingStage(ctx, key)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("complete pending stage")
		return
	}
	if remaining == 0 {
		t.Report(ctx, key, models.StageFinalizing, 99, "finalizing import")
		t.Report(ctx, key, models.StageCompleted, 100, "import complete")
	}
}

// Fail records the terminal error. Entities upserted by earlier stages stay.
func (t *Tracker) Fail(ctx context.Context, key string, err error) {
	if ferr := t.store.FailImport(ctx, key, err.Error()); ferr != nil {
		logging.Error().Err(ferr).Str("key", key).Msg("mark import failed")
	}
}

// Status returns the current record for a key.
func (t *Tracker) Status(ctx context.Context, key string) (models.ImportStatus, error) {
	return t.store.GetImportStatus(ctx, key)
}
