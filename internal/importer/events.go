package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artist-sync/internal/jobs"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/providers"
	"artist-sync/internal/store"
)

// HandleEventSync imports the artist's show listings: venues, shows, and the
// artist↔show junction. One bad event is skipped; the rest still land.
func (imp *Importer) HandleEventSync(ctx context.Context, job models.Job) error {
	var p stagePayload
	if err := imp.decodePayload(job, &p); err != nil {
		return err
	}

	artist, err := imp.entities.FindArtistByID(ctx, p.ArtistID)
	if err != nil {
		return err
	}
	if artist.AttractionID == nil {
		return fmt.Errorf("%w: artist %s has no attraction id", pipeline.ErrValidation, p.ArtistID)
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageImportingShows, 35, "fetching event listings")

	events, err := imp.events.SearchEvents(ctx, *artist.AttractionID)
	if err != nil {
		// No listings at all is a normal outcome for inactive artists.
		if !errors.Is(err, pipeline.ErrProviderNotFound) {
			return fmt.Errorf("search events: %w", err)
		}
		events = nil
	}

	var summary pipeline.Summary
	for _, ev := range events {
		summary.Add(imp.importEvent(ctx, artist.ID, ev))
	}

	imp.progress.Report(ctx, p.ArtistID, models.StageImportingShows, 60,
		fmt.Sprintf("imported %d shows", summary.Processed))

	// Historical setlists follow once shows exist to link against.
	if _, err := imp.enqueue.Enqueue(ctx, models.QueueSetlistSync, map[string]any{"artist_id": p.ArtistID}, jobs.Options{
		Priority:    models.PriorityBackground,
		MaxAttempts: imp.cfg.MaxAttempts,
	}); err != nil {
		return fmt.Errorf("enqueue setlist sync: %w", err)
	}
	imp.progress.Expect(ctx, p.ArtistID, 1)

	imp.logSummary(job.Queue, p.ArtistID, &summary)
	imp.progress.StageDone(ctx, p.ArtistID)
	return nil
}

func (imp *Importer) importEvent(ctx context.Context, artistID string, ev providers.Event) pipeline.ItemResult {
	if ev.ID == "" {
		return pipeline.Skip("event without id", nil)
	}

	var venueID *string
	if ev.Venue.ID != "" {
		v := ev.Venue
		// Listings often embed a bare venue reference; the detail endpoint
		// fills in what is missing. Enrichment is best-effort.
		if v.City == "" || v.Country == "" {
			if full, err := imp.events.GetVenue(ctx, v.ID); err == nil {
				if v.Name == "" {
					v.Name = full.Name
				}
				if v.City == "" {
					v.City = full.City
				}
				if v.Country == "" {
					v.Country = full.Country
				}
			}
		}
		venue, err := imp.entities.UpsertVenue(ctx, store.VenueUpsert{
			EventsID: v.ID,
			Name:     strPtr(v.Name),
			City:     optStr(v.City),
			Country:  optStr(v.Country),
		})
		if err != nil {
			return pipeline.Skip("venue "+ev.Venue.ID, err)
		}
		venueID = &venue.ID
	}

	up := store.ShowUpsert{
		EventsID: ev.ID,
		Name:     strPtr(ev.Name),
		VenueID:  venueID,
		Status:   strPtr(showStatus(ev)),
	}
	if t, err := time.Parse(time.RFC3339, ev.Date); err == nil {
		up.Date = &t
	}
	show, err := imp.entities.UpsertShow(ctx, up)
	if err != nil {
		return pipeline.Skip("show "+ev.ID, err)
	}
	if err := imp.entities.LinkArtistShow(ctx, show.ID, artistID, true, 0); err != nil {
		return pipeline.Skip("link show "+ev.ID, err)
	}
	return pipeline.OK()
}

// showStatus maps the provider's status vocabulary onto ours. Past dates win
// over a stale "onsale" flag; unknown statuses default to upcoming.
func showStatus(ev providers.Event) string {
	switch ev.Status {
	case "cancelled", "canceled":
		return models.ShowCancelled
	case "completed", "past":
		return models.ShowCompleted
	}
	if t, err := time.Parse(time.RFC3339, ev.Date); err == nil && t.Before(time.Now()) {
		return models.ShowCompleted
	}
	return models.ShowUpcoming
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
