// Catalog provider client (artist profiles, albums, tracks).
//
// Auth is an OAuth2 client-credentials token exchange; the oauth2 transport
// refreshes tokens transparently.
package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2/clientcredentials"

	"artist-sync/internal/config"
)

// CatalogImage is an image resource attached to artists and albums.
type CatalogImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// CatalogArtist is the provider's artist profile.
type CatalogArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Genres     []string       `json:"genres"`
	Popularity int            `json:"popularity"`
	Images     []CatalogImage `json:"images"`
}

// CatalogAlbum is one album in the artist's discography.
type CatalogAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	TotalTracks int            `json:"total_tracks"`
	Images      []CatalogImage `json:"images"`
}

// CatalogTrack is a single track. AlbumID is empty on top-track listings
// that omit album context.
type CatalogTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	Album      *struct {
		ID string `json:"id"`
	} `json:"album,omitempty"`
}

type catalogArtistSearch struct {
	Artists struct {
		Items []CatalogArtist `json:"items"`
	} `json:"artists"`
}

type catalogAlbumPage struct {
	Items []CatalogAlbum `json:"items"`
	Total int            `json:"total"`
}

type catalogTrackPage struct {
	Items []CatalogTrack `json:"items"`
	Total int            `json:"total"`
}

type catalogTopTracks struct {
	Tracks []CatalogTrack `json:"tracks"`
}

// CatalogClient wraps the profile/catalog provider behind its guard.
type CatalogClient struct {
	base  string
	http  *http.Client
	guard *Guard
}

// NewCatalogClient builds the client. Without credentials (tests, local dev
// against a stub) it falls back to an unauthenticated client.
func NewCatalogClient(cfg config.Config, guard *Guard) *CatalogClient {
	httpClient := &http.Client{Timeout: cfg.CatalogTimeout}
	if cfg.CatalogClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.CatalogClientID,
			ClientSecret: cfg.CatalogClientSecret,
			TokenURL:     cfg.CatalogTokenURL,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = cfg.CatalogTimeout
	}
	return &CatalogClient{base: cfg.CatalogBaseURL, http: httpClient, guard: guard}
}

// GetArtist fetches one artist profile by catalog id.
func (c *CatalogClient) GetArtist(ctx context.Context, id string) (CatalogArtist, error) {
	return call(ctx, c.guard, func() (CatalogArtist, error) {
		var out CatalogArtist
		err := getJSON(ctx, c.http, c.base+"/artists/"+url.PathEscape(id), nil, &out)
		return out, err
	})
}

// SearchArtists finds artists by name, best match first.
func (c *CatalogClient) SearchArtists(ctx context.Context, name string, limit int) ([]CatalogArtist, error) {
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{"q": {name}, "type": {"artist"}, "limit": {strconv.Itoa(limit)}}
	return call(ctx, c.guard, func() ([]CatalogArtist, error) {
		var out catalogArtistSearch
		if err := getJSON(ctx, c.http, withQuery(c.base, "/search", q), nil, &out); err != nil {
			return nil, err
		}
		return out.Artists.Items, nil
	})
}

// ListAlbums pages through the artist's full discography.
func (c *CatalogClient) ListAlbums(ctx context.Context, artistID string) ([]CatalogAlbum, error) {
	const pageSize = 50
	var albums []CatalogAlbum
	for offset := 0; ; offset += pageSize {
		q := url.Values{"limit": {strconv.Itoa(pageSize)}, "offset": {strconv.Itoa(offset)}}
		page, err := call(ctx, c.guard, func() (catalogAlbumPage, error) {
			var out catalogAlbumPage
			err := getJSON(ctx, c.http, withQuery(c.base, "/artists/"+url.PathEscape(artistID)+"/albums", q), nil, &out)
			return out, err
		})
		if err != nil {
			return nil, err
		}
		albums = append(albums, page.Items...)
		if len(page.Items) < pageSize {
			return albums, nil
		}
	}
}

// ListAlbumTracks returns every track on one album.
func (c *CatalogClient) ListAlbumTracks(ctx context.Context, albumID string) ([]CatalogTrack, error) {
	return call(ctx, c.guard, func() ([]CatalogTrack, error) {
		var out catalogTrackPage
		if err := getJSON(ctx, c.http, c.base+"/albums/"+url.PathEscape(albumID)+"/tracks", nil, &out); err != nil {
			return nil, err
		}
		return out.Items, nil
	})
}

// ListTopTracks returns the artist's current top tracks.
func (c *CatalogClient) ListTopTracks(ctx context.Context, artistID string) ([]CatalogTrack, error) {
	return call(ctx, c.guard, func() ([]CatalogTrack, error) {
		var out catalogTopTracks
		if err := getJSON(ctx, c.http, c.base+"/artists/"+url.PathEscape(artistID)+"/top-tracks", nil, &out); err != nil {
			return nil, err
		}
		return out.Tracks, nil
	})
}
