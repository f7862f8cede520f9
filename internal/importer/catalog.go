package importer

import (
	"context"
	"errors"
	"fmt"

	"artist-sync/internal/jobs"
	"artist-sync/internal/logging"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/providers"
	"artist-sync/internal/store"
	"artist-sync/internal/telemetry"
)

// abortStage reports whether an item-level error should abort the whole
// stage instead of skipping the item: when the provider is rate-limited or
// its breaker is open, continuing the loop is pointless — let the job retry
// after the backoff.
func abortStage(err error) bool {
	return errors.Is(err, pipeline.ErrCircuitOpen) || errors.Is(err, pipeline.ErrRateLimitTimeout)
}

// HandleCatalogSync is the fast discography path: album shells and top
// tracks land first, then an exhaustive pass is scheduled a few seconds out
// at lower priority.
func (imp *Importer) HandleCatalogSync(ctx context.Context, job models.Job) error {
	var p stagePayload
	if err := imp.decodePayload(job, &p); err != nil {
		return err
	}

	// Re-read the row; the profile stage may have run on another worker.
	artist, err := imp.entities.FindArtistByID(ctx, p.ArtistID)
	if err != nil {
		return err
	}
	if artist.CatalogID == nil {
		imp.progress.Report(ctx, p.ArtistID, models.StageImportingSongs, 50, "no catalog identifier; skipping discography")
		imp.progress.StageDone(ctx, p.ArtistID)
		return nil
	}
	catalogID := *artist.CatalogID

	imp.progress.Report(ctx, p.ArtistID, models.StageImportingSongs, 30, "importing top tracks")

	top, err := imp.catalog.ListTopTracks(ctx, catalogID)
	if err != nil {
		return fmt.Errorf("list top tracks: %w", err)
	}
	albums, err := imp.catalog.ListAlbums(ctx, catalogID)
	if err != nil {
		return fmt.Errorf("list albums: %w", err)
	}

	var summary pipeline.Summary
	for _, album := range albums {
		summary.Add(imp.importAlbumShell(ctx, artist.ID, album))
	}

	seen := newTrackSet()
	for _, track := range top {
		if !seen.Add(track.ID) {
			continue
		}
		summary.Add(imp.importTrack(ctx, artist.ID, nil, track))
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageImportingSongs, 50,
		fmt.Sprintf("fast path imported: %d albums, %d top tracks", len(albums), seen.Len()))

	// The exhaustive pass is delayed so the fast path is visible first.
	lower := job.Priority + 1
	if !lower.Valid() {
		lower = models.PriorityBackground
	}
	if _, err := imp.enqueue.Enqueue(ctx, models.QueueCatalogDeep, map[string]any{"artist_id": p.ArtistID}, jobs.Options{
		Priority:    lower,
		Delay:       imp.cfg.DeepCatalogDelay,
		MaxAttempts: imp.cfg.MaxAttempts,
	}); err != nil {
		return fmt.Errorf("enqueue deep catalog: %w", err)
	}
	imp.progress.Expect(ctx, p.ArtistID, 1)

	imp.logSummary(job.Queue, p.ArtistID, &summary)
	imp.progress.StageDone(ctx, p.ArtistID)
	return nil
}

// HandleCatalogDeep walks every album's track listing. A single album
// failing does not fail the stage; the rest of the discography still lands.
func (imp *Importer) HandleCatalogDeep(ctx context.Context, job models.Job) error {
	var p stagePayload
	if err := imp.decodePayload(job, &p); err != nil {
		return err
	}

	artist, err := imp.entities.FindArtistByID(ctx, p.ArtistID)
	if err != nil {
		return err
	}
	if artist.CatalogID == nil {
		imp.progress.StageDone(ctx, p.ArtistID)
		return nil
	}

	albums, err := imp.catalog.ListAlbums(ctx, *artist.CatalogID)
	if err != nil {
		return fmt.Errorf("list albums: %w", err)
	}

	var summary pipeline.Summary
	seen := newTrackSet()
	for i, album := range albums {
		if len(albums) > 0 {
			percent := 55 + 25*i/len(albums)
			imp.progress.Report(ctx, p.ArtistID, models.StageImportingSongs, percent,
				fmt.Sprintf("importing album %d of %d", i+1, len(albums)))
		}

		tracks, err := imp.catalog.ListAlbumTracks(ctx, album.ID)
		if err != nil {
			if abortStage(err) {
				return fmt.Errorf("list tracks for album %s: %w", album.ID, err)
			}
			summary.Add(pipeline.Skip("album "+album.ID, err))
			continue
		}

		row, err := imp.entities.UpsertAlbum(ctx, albumUpsert(artist.ID, album))
		if err != nil {
			summary.Add(pipeline.Skip("album "+album.ID, err))
			continue
		}

		for _, track := range tracks {
			if !seen.Add(track.ID) {
				continue
			}
			summary.Add(imp.importTrack(ctx, artist.ID, &row.ID, track))
		}
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageImportingSongs, 80,
		fmt.Sprintf("discography imported: %d tracks", seen.Len()))
	imp.logSummary(job.Queue, p.ArtistID, &summary)
	imp.progress.StageDone(ctx, p.ArtistID)
	return nil
}

func albumUpsert(artistID string, album providers.CatalogAlbum) store.AlbumUpsert {
	up := store.AlbumUpsert{
		CatalogID:  album.ID,
		ArtistID:   artistID,
		Title:      strPtr(album.Name),
		TrackCount: intPtr(album.TotalTracks),
	}
	if album.ReleaseDate != "" {
		up.ReleaseDate = strPtr(album.ReleaseDate)
	}
	if len(album.Images) > 0 && album.Images[0].URL != "" {
		up.ImageURL = strPtr(album.Images[0].URL)
	}
	return up
}

func (imp *Importer) importAlbumShell(ctx context.Context, artistID string, album providers.CatalogAlbum) pipeline.ItemResult {
	if album.ID == "" {
		return pipeline.Skip("album without id", nil)
	}
	if _, err := imp.entities.UpsertAlbum(ctx, albumUpsert(artistID, album)); err != nil {
		return pipeline.Skip("album "+album.ID, err)
	}
	return pipeline.OK()
}

func (imp *Importer) importTrack(ctx context.Context, artistID string, albumID *string, track providers.CatalogTrack) pipeline.ItemResult {
	if track.ID == "" {
		return pipeline.Skip("track without id", nil)
	}
	up := store.SongUpsert{
		CatalogID: track.ID,
		Title:     strPtr(track.Name),
		AlbumID:   albumID,
	}
	if track.DurationMS > 0 {
		up.DurationMS = intPtr(track.DurationMS)
	}
	song, err := imp.entities.UpsertSong(ctx, up)
	if err != nil {
		return pipeline.Skip("track "+track.ID, err)
	}
	if err := imp.entities.LinkSongArtist(ctx, song.ID, artistID); err != nil {
		return pipeline.Skip("link track "+track.ID, err)
	}
	return pipeline.OK()
}

func (imp *Importer) logSummary(queue, artistID string, summary *pipeline.Summary) {
	if summary.Skipped > 0 {
		telemetry.ItemsSkipped.WithLabelValues(queue).Add(float64(summary.Skipped))
	}
	evt := logging.Info()
	if len(summary.Errors) > 0 {
		evt = logging.Warn().Errs("skip_errors", summary.Errors)
	}
	evt.Str("queue", queue).
		Str("artist_id", artistID).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Msg("stage summary")
}
