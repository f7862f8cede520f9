// Historical-setlist provider client. Static API key auth, strict rate
// limit, so callers page conservatively.
package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"artist-sync/internal/config"
)

// SetlistSong is one performed song.
type SetlistSong struct {
	Name string `json:"name"`
}

// SetlistSet is one segment of a show (main set, encore).
type SetlistSet struct {
	Name  string        `json:"name"`
	Songs []SetlistSong `json:"songs"`
}

// Setlist is one historical show's setlist.
type Setlist struct {
	ID        string `json:"id"`
	EventDate string `json:"event_date"` // yyyy-MM-dd
	Venue     struct {
		Name string `json:"name"`
		City string `json:"city"`
	} `json:"venue"`
	Sets []SetlistSet `json:"sets"`
}

// SetlistPage is one page of search results.
type SetlistPage struct {
	Setlists []Setlist `json:"setlists"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
}

// SetlistClient wraps the historical-setlist provider behind its guard.
type SetlistClient struct {
	base   string
	apiKey string
	http   *http.Client
	guard  *Guard
}

func NewSetlistClient(cfg config.Config, guard *Guard) *SetlistClient {
	return &SetlistClient{
		base:   cfg.SetlistBaseURL,
		apiKey: cfg.SetlistAPIKey,
		http:   &http.Client{Timeout: cfg.SetlistTimeout},
		guard:  guard,
	}
}

// SearchSetlists returns one page of setlists for the named artist, most
// recent first.
func (c *SetlistClient) SearchSetlists(ctx context.Context, artistName string, page int) (SetlistPage, error) {
	if page <= 0 {
		page = 1
	}
	q := url.Values{"artistName": {artistName}, "p": {strconv.Itoa(page)}}
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("x-api-key", c.apiKey)
	}
	return call(ctx, c.guard, func() (SetlistPage, error) {
		var out SetlistPage
		err := getJSON(ctx, c.http, withQuery(c.base, "/search/setlists", q), header, &out)
		return out, err
	})
}
