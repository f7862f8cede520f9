package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
)

// Entity upserts are keyed on each provider's natural id. On conflict only
// explicitly supplied (non-nil) fields overwrite existing ones, so a stage
// that knows just a subset of fields never clobbers previously stored data.

// ArtistUpsert carries artist fields; nil means "leave as is".
type ArtistUpsert struct {
	AttractionID string
	Name         *string
	Slug         *string
	CatalogID    *string
	ImageURL     *string
	Genres       []string
	Synced       *bool
}

// UpsertArtist inserts or updates the artist keyed by attraction id.
// A unique-constraint race resolves by re-reading the winning row.
func (s *Store) UpsertArtist(ctx context.Context, p ArtistUpsert) (models.Artist, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO artists (id, attraction_id, name, slug, catalog_id, image_url, genres, synced)
		VALUES ($1, $2, COALESCE($3, ''), COALESCE($4, ''), $5, $6, COALESCE($7, '{}'), COALESCE($8, FALSE))
		ON CONFLICT (attraction_id) DO UPDATE SET
			name = COALESCE($3, artists.name),
			slug = COALESCE($4, artists.slug),
			catalog_id = COALESCE($5, artists.catalog_id),
			image_url = COALESCE($6, artists.image_url),
			genres = COALESCE($7, artists.genres),
			synced = COALESCE($8, artists.synced),
			updated_at = NOW()
		RETURNING id, attraction_id, catalog_id, name, slug, image_url, genres, synced, created_at, updated_at
	`, uuid.New().String(), p.AttractionID, p.Name, p.Slug, p.CatalogID, p.ImageURL, p.Genres, p.Synced)

	artist, err := scanArtist(row)
	if err != nil {
		if isUniqueViolation(err) {
			existing, found, ferr := s.FindArtistByAttractionID(ctx, p.AttractionID)
			if ferr != nil || !found {
				return models.Artist{}, fmt.Errorf("%w: %v", pipeline.ErrStoreConflict, err)
			}
			return existing, nil
		}
		return models.Artist{}, fmt.Errorf("upsert artist: %w", err)
	}
	return artist, nil
}

// FindArtistByAttractionID looks an artist up by the events provider id.
func (s *Store) FindArtistByAttractionID(ctx context.Context, attractionID string) (models.Artist, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, attraction_id, catalog_id, name, slug, image_url, genres, synced, created_at, updated_at
		FROM artists WHERE attraction_id = $1
	`, attractionID)
	artist, err := scanArtist(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Artist{}, false, nil
	}
	if err != nil {
		return models.Artist{}, false, fmt.Errorf("find artist: %w", err)
	}
	return artist, true, nil
}

// FindArtistByID looks an artist up by local surrogate id.
func (s *Store) FindArtistByID(ctx context.Context, id string) (models.Artist, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, attraction_id, catalog_id, name, slug, image_url, genres, synced, created_at, updated_at
		FROM artists WHERE id = $1
	`, id)
	artist, err := scanArtist(row)
	if err != nil {
		return models.Artist{}, fmt.Errorf("find artist %s: %w", id, err)
	}
	return artist, nil
}

func scanArtist(row pgx.Row) (models.Artist, error) {
	var a models.Artist
	var attraction, catalog, image pgtype.Text
	if err := row.Scan(&a.ID, &attraction, &catalog, &a.Name, &a.Slug, &image, &a.Genres, &a.Synced, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return models.Artist{}, err
	}
	a.AttractionID = textPtr(attraction)
	a.CatalogID = textPtr(catalog)
	a.ImageURL = textPtr(image)
	return a, nil
}

// AlbumUpsert carries album fields keyed by the catalog album id.
type AlbumUpsert struct {
	CatalogID   string
	ArtistID    string
	Title       *string
	ReleaseDate *string
	TrackCount  *int
	ImageURL    *string
}

func (s *Store) UpsertAlbum(ctx context.Context, p AlbumUpsert) (models.Album, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO albums (id, catalog_id, artist_id, title, release_date, track_count, image_url)
		VALUES ($1, $2, $3, COALESCE($4, ''), $5, COALESCE($6, 0), $7)
		ON CONFLICT (catalog_id) DO UPDATE SET
			title = COALESCE($4, albums.title),
			release_date = COALESCE($5, albums.release_date),
			track_count = COALESCE($6, albums.track_count),
			image_url = COALESCE($7, albums.image_url),
			updated_at = NOW()
		RETURNING id, catalog_id, artist_id, title, release_date, track_count, image_url, created_at, updated_at
	`, uuid.New().String(), p.CatalogID, p.ArtistID, p.Title, p.ReleaseDate, p.TrackCount, p.ImageURL)

	var a models.Album
	var release, image pgtype.Text
	if err := row.Scan(&a.ID, &a.CatalogID, &a.ArtistID, &a.Title, &release, &a.TrackCount, &image, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return models.Album{}, fmt.Errorf("upsert album: %w", err)
	}
	a.ReleaseDate = textPtr(release)
	a.ImageURL = textPtr(image)
	return a, nil
}

// SongUpsert carries song fields keyed by the catalog track id.
type SongUpsert struct {
	CatalogID  string
	Title      *string
	AlbumID    *string
	DurationMS *int
}

func (s *Store) UpsertSong(ctx context.Context, p SongUpsert) (models.Song, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO songs (id, catalog_id, title, album_id, duration_ms)
		VALUES ($1, $2, COALESCE($3, ''), $4, COALESCE($5, 0))
		ON CONFLICT (catalog_id) DO UPDATE SET
			title = COALESCE($3, songs.title),
			album_id = COALESCE($4, songs.album_id),
			duration_ms = COALESCE($5, songs.duration_ms),
			updated_at = NOW()
		RETURNING id, catalog_id, title, album_id, duration_ms, created_at, updated_at
	`, uuid.New().String(), p.CatalogID, p.Title, p.AlbumID, p.DurationMS)

	var song models.Song
	var albumID pgtype.Text
	if err := row.Scan(&song.ID, &song.CatalogID, &song.Title, &albumID, &song.DurationMS, &song.CreatedAt, &song.UpdatedAt); err != nil {
		return models.Song{}, fmt.Errorf("upsert song: %w", err)
	}
	song.AlbumID = textPtr(albumID)
	return song, nil
}

// LinkSongArtist records the song↔artist relation; duplicates are ignored.
func (s *Store) LinkSongArtist(ctx context.Context, songID, artistID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO song_artists (song_id, artist_id) VALUES ($1, $2)
		ON CONFLICT (song_id, artist_id) DO NOTHING
	`, songID, artistID)
	return err
}

// VenueUpsert carries venue fields keyed by the events provider venue id.
type VenueUpsert struct {
	EventsID string
	Name     *string
	City     *string
	Country  *string
}

func (s *Store) UpsertVenue(ctx context.Context, p VenueUpsert) (models.Venue, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO venues (id, events_id, name, city, country)
		VALUES ($1, $2, COALESCE($3, ''), $4, $5)
		ON CONFLICT (events_id) DO UPDATE SET
			name = COALESCE($3, venues.name),
			city = COALESCE($4, venues.city),
			country = COALESCE($5, venues.country),
			updated_at = NOW()
		RETURNING id, events_id, name, city, country, created_at, updated_at
	`, uuid.New().String(), p.EventsID, p.Name, p.City, p.Country)

	var v models.Venue
	var city, country pgtype.Text
	if err := row.Scan(&v.ID, &v.EventsID, &v.Name, &city, &country, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return models.Venue{}, fmt.Errorf("upsert venue: %w", err)
	}
	v.City = textPtr(city)
	v.Country = textPtr(country)
	return v, nil
}

// ShowUpsert carries show fields keyed by the events provider event id.
type ShowUpsert struct {
	EventsID string
	Name     *string
	VenueID  *string
	Date     *time.Time
	Status   *string
}

func (s *Store) UpsertShow(ctx context.Context, p ShowUpsert) (models.Show, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO shows (id, events_id, name, venue_id, show_date, status)
		VALUES ($1, $2, COALESCE($3, ''), $4, $5, COALESCE($6, 'upcoming'))
		ON CONFLICT (events_id) DO UPDATE SET
			name = COALESCE($3, shows.name),
			venue_id = COALESCE($4, shows.venue_id),
			show_date = COALESCE($5, shows.show_date),
			status = COALESCE($6, shows.status),
			updated_at = NOW()
		RETURNING id, events_id, name, venue_id, show_date, status, created_at, updated_at
	`, uuid.New().String(), p.EventsID, p.Name, p.VenueID, p.Date, p.Status)

	var show models.Show
	var venueID pgtype.Text
	var date pgtype.Timestamptz
	if err := row.Scan(&show.ID, &show.EventsID, &show.Name, &venueID, &date, &show.Status, &show.CreatedAt, &show.UpdatedAt); err != nil {
		return models.Show{}, fmt.Errorf("upsert show: %w", err)
	}
	show.VenueID = textPtr(venueID)
	if date.Valid {
		t := date.Time
		show.Date = &t
	}
	return show, nil
}

// LinkArtistShow records the artist↔show junction; duplicate pairs are
// ignored so racing stages cannot double-link.
func (s *Store) LinkArtistShow(ctx context.Context, showID, artistID string, headliner bool, position int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artist_shows (show_id, artist_id, headliner, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (show_id, artist_id) DO NOTHING
	`, showID, artistID, headliner, position)
	return err
}

// FindShowOn matches one of the artist's shows on a calendar date, used to
// attach historical setlists to known shows.
func (s *Store) FindShowOn(ctx context.Context, artistID string, date time.Time) (models.Show, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT s.id, s.events_id, s.name, s.venue_id, s.show_date, s.status, s.created_at, s.updated_at
		FROM shows s
		JOIN artist_shows a ON a.show_id = s.id
		WHERE a.artist_id = $1 AND s.show_date::date = $2::date
		LIMIT 1
	`, artistID, date)

	var show models.Show
	var venueID pgtype.Text
	var d pgtype.Timestamptz
	err := row.Scan(&show.ID, &show.EventsID, &show.Name, &venueID, &d, &show.Status, &show.CreatedAt, &show.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Show{}, false, nil
	}
	if err != nil {
		return models.Show{}, false, fmt.Errorf("find show: %w", err)
	}
	show.VenueID = textPtr(venueID)
	if d.Valid {
		t := d.Time
		show.Date = &t
	}
	return show, true, nil
}

// SetlistUpsert carries setlist fields keyed by the setlist provider id.
type SetlistUpsert struct {
	ProviderID string
	ArtistID   string
	ShowID     *string
	VenueName  *string
	EventDate  *string
}

func (s *Store) UpsertSetlist(ctx context.Context, p SetlistUpsert) (models.Setlist, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO setlists (id, provider_id, artist_id, show_id, venue_name, event_date)
		VALUES ($1, $2, $3, $4, COALESCE($5, ''), COALESCE($6, ''))
		ON CONFLICT (provider_id) DO UPDATE SET
			show_id = COALESCE($4, setlists.show_id),
			venue_name = COALESCE($5, setlists.venue_name),
			event_date = COALESCE($6, setlists.event_date)
		RETURNING id, provider_id, artist_id, show_id, venue_name, event_date, created_at
	`, uuid.New().String(), p.ProviderID, p.ArtistID, p.ShowID, p.VenueName, p.EventDate)

	var sl models.Setlist
	var showID pgtype.Text
	if err := row.Scan(&sl.ID, &sl.ProviderID, &sl.ArtistID, &showID, &sl.VenueName, &sl.EventDate, &sl.CreatedAt); err != nil {
		return models.Setlist{}, fmt.Errorf("upsert setlist: %w", err)
	}
	sl.ShowID = textPtr(showID)
	return sl, nil
}

// ReplaceSetlistSongs rewrites the ordered song list of one setlist.
func (s *Store) ReplaceSetlistSongs(ctx context.Context, setlistID string, songs []models.SetlistSong) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if _, err := tx.Exec(ctx, `DELETE FROM setlist_songs WHERE setlist_id = $1`, setlistID); err != nil {
		return fmt.Errorf("clear setlist songs: %w", err)
	}
	for _, song := range songs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO setlist_songs (setlist_id, position, title, song_id)
			VALUES ($1, $2, $3, $4)
		`, setlistID, song.Position, song.Title, song.SongID); err != nil {
			return fmt.Errorf("insert setlist song: %w", err)
		}
	}
	return tx.Commit(ctx)
}
