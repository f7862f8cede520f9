package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/providers"
	"artist-sync/internal/store"
)

// HandleSetlistSync imports historical setlists and links them to known shows
// by calendar date. The provider's rate limit is the tightest in the pipeline,
// so only the first page is fetched per run.
func (imp *Importer) HandleSetlistSync(ctx context.Context, job models.Job) error {
	var p stagePayload
	if err := imp.decodePayload(job, &p); err != nil {
		return err
	}

	artist, err := imp.entities.FindArtistByID(ctx, p.ArtistID)
	if err != nil {
		return err
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageCreatingSetlists, 85, "fetching setlists")

	page, err := imp.setlists.SearchSetlists(ctx, artist.Name, 1)
	if err != nil {
		// Artists with no performance history are not an error.
		if !errors.Is(err, pipeline.ErrProviderNotFound) {
			return fmt.Errorf("search setlists: %w", err)
		}
		page = providers.SetlistPage{}
	}

	var summary pipeline.Summary
	for _, sl := range page.Setlists {
		summary.Add(imp.importSetlist(ctx, artist.ID, sl))
	}

	// The events branch has run by now; the artist has been through at least
	// one full pass.
	if artist.AttractionID != nil {
		if _, err := imp.entities.UpsertArtist(ctx, store.ArtistUpsert{
			AttractionID: *artist.AttractionID,
			Synced:       boolPtr(true),
		}); err != nil {
			return fmt.Errorf("mark artist synced: %w", err)
		}
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageCreatingSetlists, 95,
		fmt.Sprintf("imported %d setlists", summary.Processed))
	imp.logSummary(job.Queue, p.ArtistID, &summary)
	imp.progress.StageDone(ctx, p.ArtistID)
	return nil
}

func (imp *Importer) importSetlist(ctx context.Context, artistID string, sl providers.Setlist) pipeline.ItemResult {
	if sl.ID == "" {
		return pipeline.Skip("setlist without id", nil)
	}

	up := store.SetlistUpsert{
		ProviderID: sl.ID,
		ArtistID:   artistID,
		VenueName:  optStr(sl.Venue.Name),
		EventDate:  optStr(sl.EventDate),
	}
	if date, err := time.Parse("2006-01-02", sl.EventDate); err == nil {
		show, found, ferr := imp.entities.FindShowOn(ctx, artistID, date)
		if ferr != nil {
			return pipeline.Skip("setlist "+sl.ID, ferr)
		}
		if found {
			up.ShowID = &show.ID
		}
	}

	row, err := imp.entities.UpsertSetlist(ctx, up)
	if err != nil {
		return pipeline.Skip("setlist "+sl.ID, err)
	}

	var songs []models.SetlistSong
	for _, set := range sl.Sets {
		for _, song := range set.Songs {
			if song.Name == "" {
				continue
			}
			songs = append(songs, models.SetlistSong{
				SetlistID: row.ID,
				Position:  len(songs) + 1,
				Title:     song.Name,
			})
		}
	}
	if len(songs) > 0 {
		if err := imp.entities.ReplaceSetlistSongs(ctx, row.ID, songs); err != nil {
			return pipeline.Skip("setlist songs "+sl.ID, err)
		}
	}
	return pipeline.OK()
}
