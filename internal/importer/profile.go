package importer

import (
	"context"
	"errors"
	"fmt"

	"artist-sync/internal/jobs"
	"artist-sync/internal/logging"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/store"
)

// HandleProfileSync is the first stage: fetch the attraction profile, fill
// in the artist row, resolve the catalog provider identifier by name, then
// fan out the catalog and event branches.
func (imp *Importer) HandleProfileSync(ctx context.Context, job models.Job) error {
	var p profilePayload
	if err := imp.decodePayload(job, &p); err != nil {
		return err
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageInitializing, 5, "fetching artist profile")

	// The profile is the stage's core purpose; failure fails the job.
	attraction, err := imp.events.GetAttraction(ctx, p.AttractionID)
	if err != nil {
		return fmt.Errorf("fetch attraction %s: %w", p.AttractionID, err)
	}

	upsert := store.ArtistUpsert{
		AttractionID: p.AttractionID,
		Name:         strPtr(attraction.Name),
		Slug:         strPtr(slugify(attraction.Name)),
	}
	if len(attraction.Genres) > 0 {
		upsert.Genres = attraction.Genres
	}
	if len(attraction.Images) > 0 && attraction.Images[0].URL != "" {
		upsert.ImageURL = strPtr(attraction.Images[0].URL)
	}
	artist, err := imp.entities.UpsertArtist(ctx, upsert)
	if err != nil {
		return fmt.Errorf("upsert artist: %w", err)
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageSyncingIdentifiers, 15, "resolving catalog identifier")

	// Catalog resolution is best-effort: without a match the discography
	// branch degrades to a no-op instead of failing the import.
	matches, err := imp.catalog.SearchArtists(ctx, attraction.Name, 5)
	switch {
	case err == nil && len(matches) > 0:
		best := matches[0]
		upd := store.ArtistUpsert{
			AttractionID: p.AttractionID,
			CatalogID:    strPtr(best.ID),
		}
		if len(best.Genres) > 0 {
			upd.Genres = best.Genres
		}
		if artist.ImageURL == nil && len(best.Images) > 0 && best.Images[0].URL != "" {
			upd.ImageURL = strPtr(best.Images[0].URL)
		}
		if artist, err = imp.entities.UpsertArtist(ctx, upd); err != nil {
			return fmt.Errorf("store catalog id: %w", err)
		}
	case err != nil && !errors.Is(err, pipeline.ErrProviderNotFound):
		return fmt.Errorf("search catalog: %w", err)
	default:
		logging.Warn().Str("artist_id", p.ArtistID).Str("name", attraction.Name).Msg("no catalog match; discography will be skipped")
	}

	// Fan out. Both branches must finish before the run completes. Each
	// expectation registers only after its job is on the queue: a retried
	// attempt must not leave a pending count for a job that was never
	// enqueued, and the duplicate jobs a retry produces each carry their
	// own expectation.
	stage := map[string]any{"artist_id": p.ArtistID}
	if _, err := imp.enqueue.Enqueue(ctx, models.QueueCatalogSync, stage, jobs.Options{Priority: job.Priority, MaxAttempts: imp.cfg.MaxAttempts}); err != nil {
		return fmt.Errorf("enqueue catalog sync: %w", err)
	}
	imp.progress.Expect(ctx, p.ArtistID, 1)
	if _, err := imp.enqueue.Enqueue(ctx, models.QueueEventSync, stage, jobs.Options{Priority: job.Priority, MaxAttempts: imp.cfg.MaxAttempts}); err != nil {
		return fmt.Errorf("enqueue event sync: %w", err)
	}
	imp.progress.Expect(ctx, p.ArtistID, 1)

	// Artwork mirroring is fire-and-forget; it never gates completion.
	if artist.ImageURL != nil {
		_, err := imp.enqueue.Enqueue(ctx, models.QueueArtwork, map[string]any{
			"source_url": *artist.ImageURL,
			"output_key": "artists/" + artist.ID + ".jpg",
		}, jobs.Options{Priority: models.PriorityBackground, MaxAttempts: 3})
		if err != nil {
			logging.Warn().Err(err).Str("artist_id", artist.ID).Msg("enqueue artwork mirror")
		}
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageSyncingIdentifiers, 25, "identifiers synced")
	imp.progress.StageDone(ctx, p.ArtistID)
	return nil
}
