// Events provider client (attractions, events, venues). Static API key auth.
package providers

import (
	"context"
	"net/http"
	"net/url"

	"artist-sync/internal/config"
)

// Attraction is the events provider's artist record; its id is the handle
// callers pass to start an import.
type Attraction struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// EventVenue is venue data embedded in an event listing.
type EventVenue struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// Event is one show listing.
type Event struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Date   string     `json:"date"` // RFC 3339
	Status string     `json:"status"`
	Venue  EventVenue `json:"venue"`
}

type eventPage struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// EventsClient wraps the events/venues provider behind its guard.
type EventsClient struct {
	base   string
	apiKey string
	http   *http.Client
	guard  *Guard
}

func NewEventsClient(cfg config.Config, guard *Guard) *EventsClient {
	return &EventsClient{
		base:   cfg.EventsBaseURL,
		apiKey: cfg.EventsAPIKey,
		http:   &http.Client{Timeout: cfg.EventsTimeout},
		guard:  guard,
	}
}

func (c *EventsClient) query(extra url.Values) url.Values {
	q := url.Values{}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return q
}

// GetAttraction fetches one attraction by id.
func (c *EventsClient) GetAttraction(ctx context.Context, id string) (Attraction, error) {
	return call(ctx, c.guard, func() (Attraction, error) {
		var out Attraction
		err := getJSON(ctx, c.http, withQuery(c.base, "/attractions/"+url.PathEscape(id), c.query(nil)), nil, &out)
		return out, err
	})
}

// SearchEvents lists events for an attraction, soonest first.
func (c *EventsClient) SearchEvents(ctx context.Context, attractionID string) ([]Event, error) {
	q := c.query(url.Values{"attractionId": {attractionID}, "sort": {"date,asc"}})
	return call(ctx, c.guard, func() ([]Event, error) {
		var out eventPage
		if err := getJSON(ctx, c.http, withQuery(c.base, "/events", q), nil, &out); err != nil {
			return nil, err
		}
		return out.Events, nil
	})
}

// GetVenue fetches one venue by id, for events whose embedded venue data is
// incomplete.
func (c *EventsClient) GetVenue(ctx context.Context, id string) (EventVenue, error) {
	return call(ctx, c.guard, func() (EventVenue, error) {
		var out EventVenue
		err := getJSON(ctx, c.http, withQuery(c.base, "/venues/"+url.PathEscape(id), c.query(nil)), nil, &out)
		return out, err
	})
}
