// Package importer orchestrates the multi-stage artist import: profile,
// catalog, events, and historical setlists, chained through the job queues.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"artist-sync/internal/config"
	"artist-sync/internal/jobs"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/providers"
	"artist-sync/internal/store"
)

// EntityStore is the upsert/query contract over the relational store.
// *store.Store satisfies it; stage tests use an in-memory fake.
type EntityStore interface {
	UpsertArtist(ctx context.Context, p store.ArtistUpsert) (models.Artist, error)
	FindArtistByAttractionID(ctx context.Context, attractionID string) (models.Artist, bool, error)
	FindArtistByID(ctx context.Context, id string) (models.Artist, error)
	UpsertAlbum(ctx context.Context, p store.AlbumUpsert) (models.Album, error)
	UpsertSong(ctx context.Context, p store.SongUpsert) (models.Song, error)
	LinkSongArtist(ctx context.Context, songID, artistID string) error
	UpsertVenue(ctx context.Context, p store.VenueUpsert) (models.Venue, error)
	UpsertShow(ctx context.Context, p store.ShowUpsert) (models.Show, error)
	LinkArtistShow(ctx context.Context, showID, artistID string, headliner bool, position int) error
	FindShowOn(ctx context.Context, artistID string, date time.Time) (models.Show, bool, error)
	UpsertSetlist(ctx context.Context, p store.SetlistUpsert) (models.Setlist, error)
	ReplaceSetlistSongs(ctx context.Context, setlistID string, songs []models.SetlistSong) error
}

// Enqueuer chains follow-up stage jobs. *jobs.Service satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload map[string]any, opts jobs.Options) (models.Job, error)
}

// CatalogProvider is the profile/catalog provider surface the stages need.
type CatalogProvider interface {
	SearchArtists(ctx context.Context, name string, limit int) ([]providers.CatalogArtist, error)
	ListAlbums(ctx context.Context, artistID string) ([]providers.CatalogAlbum, error)
	ListAlbumTracks(ctx context.Context, albumID string) ([]providers.CatalogTrack, error)
	ListTopTracks(ctx context.Context, artistID string) ([]providers.CatalogTrack, error)
}

// EventsProvider is the events/venues provider surface.
type EventsProvider interface {
	GetAttraction(ctx context.Context, id string) (providers.Attraction, error)
	SearchEvents(ctx context.Context, attractionID string) ([]providers.Event, error)
	GetVenue(ctx context.Context, id string) (providers.EventVenue, error)
}

// SetlistProvider is the historical-setlist provider surface.
type SetlistProvider interface {
	SearchSetlists(ctx context.Context, artistName string, page int) (providers.SetlistPage, error)
}

// CacheInvalidator evicts derived read-side keys after a forced refresh.
type CacheInvalidator interface {
	InvalidateArtist(ctx context.Context, artistID string) (int, error)
}

// Importer wires the stages together. The progress tracker is an explicit
// collaborator; stages report through it rather than threading callbacks.
type Importer struct {
	cfg      config.Config
	entities EntityStore
	progress *Tracker
	enqueue  Enqueuer
	catalog  CatalogProvider
	events   EventsProvider
	setlists SetlistProvider
	cache    CacheInvalidator // optional
	validate *validator.Validate
}

func New(cfg config.Config, entities EntityStore, progress *Tracker, enq Enqueuer, catalog CatalogProvider, events EventsProvider, setlists SetlistProvider, cache CacheInvalidator) *Importer {
	return &Importer{
		cfg:      cfg,
		entities: entities,
		progress: progress,
		enqueue:  enq,
		catalog:  catalog,
		events:   events,
		setlists: setlists,
		cache:    cache,
		validate: validator.New(),
	}
}

// decodePayload round-trips the job payload map into a typed struct and
// validates it. A malformed payload fails the job immediately.
func (imp *Importer) decodePayload(job models.Job, out any) error {
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", pipeline.ErrValidation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode payload: %v", pipeline.ErrValidation, err)
	}
	if err := imp.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrValidation, err)
	}
	return nil
}

// stagePayload is the common payload for every stage after the first.
type stagePayload struct {
	ArtistID string `json:"artist_id" validate:"required"`
}

// profilePayload starts the pipeline.
type profilePayload struct {
	ArtistID     string `json:"artist_id" validate:"required"`
	AttractionID string `json:"attraction_id" validate:"required"`
	Force        bool   `json:"force"`
}

// slugify lowercases and collapses a name into a URL-safe slug.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }
