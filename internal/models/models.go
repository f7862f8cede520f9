package models

import (
	"time"
)

// Queue names. Each queue carries exactly one payload shape and one processor.
const (
	QueueProfileSync = "profile_sync"
	QueueCatalogSync = "catalog_sync"
	QueueCatalogDeep = "catalog_deep"
	QueueEventSync   = "event_sync"
	QueueSetlistSync = "setlist_sync"
	QueueArtwork     = "artwork"
)

// Priority orders eligible jobs within a queue, 1 first.
type Priority int

const (
	PriorityCritical   Priority = 1
	PriorityHigh       Priority = 2
	PriorityNormal     Priority = 3
	PriorityLow        Priority = 4
	PriorityBackground Priority = 5
)

// Valid reports whether p is within the supported range.
func (p Priority) Valid() bool { return p >= PriorityCritical && p <= PriorityBackground }

// Job lifecycle states persisted in Postgres. Redis holds the scheduling
// view; the Postgres row is the source of truth for attempts and outcome.
const (
	StatusWaiting   = "waiting"
	StatusDelayed   = "delayed"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job represents one unit of queued, retryable work.
type Job struct {
	ID          string         `json:"id"`
	Queue       string         `json:"queue"`
	Priority    Priority       `json:"priority"`
	Payload     map[string]any `json:"payload"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	NextRunAt   time.Time      `json:"next_run_at"`
	LeasedBy    *string        `json:"leased_by,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Import stages, in the order a healthy run moves through them. Catalog and
// event branches run in parallel, so pollers may observe stage regressions.
const (
	StageInitializing       = "initializing"
	StageSyncingIdentifiers = "syncing-identifiers"
	StageImportingShows     = "importing-shows"
	StageImportingSongs     = "importing-songs"
	StageCreatingSetlists   = "creating-setlists"
	StageFinalizing         = "finalizing"
	StageCompleted          = "completed"
	StageFailed             = "failed"
)

// ImportStatus is the poller-visible progress record for one import run,
// keyed by the artist's local id.
type ImportStatus struct {
	Key           string    `json:"key"`
	Stage         string    `json:"stage"`
	Percent       int       `json:"percent"`
	Message       string    `json:"message"`
	Error         *string   `json:"error,omitempty"`
	PendingStages int       `json:"pending_stages"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Show status transitions; the pipeline never deletes shows.
const (
	ShowUpcoming  = "upcoming"
	ShowCompleted = "completed"
	ShowCancelled = "cancelled"
)

// Artist is the import target. AttractionID is the events provider's natural
// key, CatalogID the catalog provider's; either may be unknown at first.
type Artist struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	AttractionID *string   `json:"attraction_id,omitempty"`
	CatalogID    *string   `json:"catalog_id,omitempty"`
	ImageURL     *string   `json:"image_url,omitempty"`
	Genres       []string  `json:"genres,omitempty"`
	Synced       bool      `json:"synced"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Album keyed by the catalog provider's album id.
type Album struct {
	ID          string    `json:"id"`
	CatalogID   string    `json:"catalog_id"`
	ArtistID    string    `json:"artist_id"`
	Title       string    `json:"title"`
	ReleaseDate *string   `json:"release_date,omitempty"`
	TrackCount  int       `json:"track_count"`
	ImageURL    *string   `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Song keyed by the catalog provider's track id.
type Song struct {
	ID         string    `json:"id"`
	CatalogID  string    `json:"catalog_id"`
	Title      string    `json:"title"`
	AlbumID    *string   `json:"album_id,omitempty"`
	DurationMS int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Venue keyed by the events provider's venue id.
type Venue struct {
	ID        string    `json:"id"`
	EventsID  string    `json:"events_id"`
	Name      string    `json:"name"`
	City      *string   `json:"city,omitempty"`
	Country   *string   `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Show keyed by the events provider's event id.
type Show struct {
	ID        string     `json:"id"`
	EventsID  string     `json:"events_id"`
	Name      string     `json:"name"`
	VenueID   *string    `json:"venue_id,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Setlist keyed by the historical-setlist provider's id. ShowID is filled
// when a local show matches by date and venue.
type Setlist struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	ArtistID   string    `json:"artist_id"`
	ShowID     *string   `json:"show_id,omitempty"`
	VenueName  string    `json:"venue_name"`
	EventDate  string    `json:"event_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// SetlistSong is one performed song within a setlist.
type SetlistSong struct {
	SetlistID string  `json:"setlist_id"`
	Position  int     `json:"position"`
	Title     string  `json:"title"`
	SongID    *string `json:"song_id,omitempty"`
}
