package importer

import (
	"context"
	"fmt"

	"artist-sync/internal/jobs"
	"artist-sync/internal/logging"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/store"
	"artist-sync/internal/telemetry"
)

// ImportRequest starts one artist import.
type ImportRequest struct {
	AttractionID string          `json:"attraction_id" validate:"required"`
	Priority     models.Priority `json:"priority"`
	Admin        bool            `json:"admin"`
	Force        bool            `json:"force"`
}

// Receipt is returned to the caller immediately; the import itself runs
// asynchronously and is observable via the status record keyed by ArtistID.
type Receipt struct {
	ArtistID string `json:"artist_id"`
	Slug     string `json:"slug"`
}

// ImportArtist is the only synchronous entry point. It finds or creates the
// artist row, resets the status record, enqueues the profile-sync job, and
// returns. Calling it twice for the same attraction id reuses the same row.
func (imp *Importer) ImportArtist(ctx context.Context, req ImportRequest) (Receipt, error) {
	if err := imp.validate.Struct(req); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", pipeline.ErrValidation, err)
	}

	priority := req.Priority
	if !priority.Valid() {
		priority = models.PriorityNormal
		if req.Admin {
			priority = models.PriorityHigh
		}
	}

	artist, found, err := imp.entities.FindArtistByAttractionID(ctx, req.AttractionID)
	if err != nil {
		return Receipt{}, err
	}
	if !found {
		// Minimal placeholder so the caller gets an id immediately; the
		// profile stage fills in real data.
		artist, err = imp.entities.UpsertArtist(ctx, store.ArtistUpsert{
			AttractionID: req.AttractionID,
			Name:         strPtr(req.AttractionID),
			Slug:         strPtr(slugify(req.AttractionID)),
			Synced:       boolPtr(false),
		})
		if err != nil {
			return Receipt{}, err
		}
	}

	if found && req.Force && imp.cache != nil {
		if evicted, err := imp.cache.InvalidateArtist(ctx, artist.ID); err != nil {
			logging.Warn().Err(err).Str("artist_id", artist.ID).Msg("cache invalidation")
		} else if evicted > 0 {
			logging.Info().Str("artist_id", artist.ID).Int("evicted", evicted).Msg("cache invalidated for forced refresh")
		}
	}

	if err := imp.progress.Begin(ctx, artist.ID, "import queued"); err != nil {
		return Receipt{}, err
	}

	_, err = imp.enqueue.Enqueue(ctx, models.QueueProfileSync, map[string]any{
		"artist_id":     artist.ID,
		"attraction_id": req.AttractionID,
		"force":         req.Force,
	}, jobs.Options{Priority: priority, MaxAttempts: imp.cfg.MaxAttempts})
	if err != nil {
		return Receipt{}, fmt.Errorf("enqueue profile sync: %w", err)
	}

	telemetry.ImportsStarted.Inc()
	logging.Info().
		Str("artist_id", artist.ID).
		Str("attraction_id", req.AttractionID).
		Int("priority", int(priority)).
		Msg("import started")

	return Receipt{ArtistID: artist.ID, Slug: artist.Slug}, nil
}

// OnJobFailed is installed as the worker pools' permanent-failure hook: when
// a stage job exhausts its retries (or fails a validation), the import status
// surfaces the terminal error to pollers. Entities already upserted stay.
func (imp *Importer) OnJobFailed(ctx context.Context, job models.Job, err error) {
	key, _ := job.Payload["artist_id"].(string)
	if key == "" {
		return
	}
	imp.progress.Fail(ctx, key, err)
}
