package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"artist-sync/internal/breaker"
	"artist-sync/internal/config"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/ratelimit"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{200, nil},
		{204, nil},
		{404, pipeline.ErrProviderNotFound},
		{408, pipeline.ErrProviderTransient},
		{429, pipeline.ErrProviderTransient},
		{500, pipeline.ErrProviderTransient},
		{503, pipeline.ErrProviderTransient},
		{400, pipeline.ErrValidation},
		{403, pipeline.ErrValidation},
	}
	for _, tc := range cases {
		err := classifyStatus(tc.code)
		if tc.want == nil {
			require.NoError(t, err, "status %d", tc.code)
			continue
		}
		require.ErrorIs(t, err, tc.want, "status %d", tc.code)
	}
}

func TestGetJSONNetworkErrorIsTransient(t *testing.T) {
	client := &http.Client{Timeout: 200 * time.Millisecond}
	var out map[string]any
	err := getJSON(context.Background(), client, "http://127.0.0.1:1/none", nil, &out)
	require.ErrorIs(t, err, pipeline.ErrProviderTransient)
}

func testGuard(name string) *Guard {
	lim := ratelimit.NewProviderLimiter(name, 1000, 1000, time.Second)
	br := breaker.New(breaker.Settings{Name: name + "-test", ConsecutiveFailures: 100, Cooldown: time.Minute})
	return NewGuard(name, lim, br)
}

func TestEventsClientSearchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events", r.URL.Path)
		require.Equal(t, "attr-1", r.URL.Query().Get("attractionId"))
		require.Equal(t, "date,asc", r.URL.Query().Get("sort"))
		require.Equal(t, "key-123", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[{"id":"ev-1","name":"Arena Night","date":"2026-10-01T20:00:00Z","status":"onsale","venue":{"id":"v-1","name":"Big Arena","city":"Lisbon","country":"PT"}}],"total":1}`))
	}))
	defer srv.Close()

	cfg := config.Config{EventsBaseURL: srv.URL, EventsAPIKey: "key-123", EventsTimeout: time.Second}
	client := NewEventsClient(cfg, testGuard("events"))

	events, err := client.SearchEvents(context.Background(), "attr-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "ev-1", events[0].ID)
	require.Equal(t, "Big Arena", events[0].Venue.Name)
}

func TestEventsClientAttractionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := config.Config{EventsBaseURL: srv.URL, EventsTimeout: time.Second}
	client := NewEventsClient(cfg, testGuard("events"))

	_, err := client.GetAttraction(context.Background(), "nope")
	require.ErrorIs(t, err, pipeline.ErrProviderNotFound)
	require.False(t, pipeline.Retryable(err))
}

func TestEventsClientGetVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/venues/v-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"v-1","name":"Big Arena","city":"Lisbon","country":"PT"}`))
	}))
	defer srv.Close()

	cfg := config.Config{EventsBaseURL: srv.URL, EventsTimeout: time.Second}
	client := NewEventsClient(cfg, testGuard("events"))

	venue, err := client.GetVenue(context.Background(), "v-1")
	require.NoError(t, err)
	require.Equal(t, "Big Arena", venue.Name)
	require.Equal(t, "Lisbon", venue.City)
	require.Equal(t, "PT", venue.Country)
}

func TestSetlistClientSendsAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.Equal(t, "Radiohead", r.URL.Query().Get("artistName"))
		require.Equal(t, "1", r.URL.Query().Get("p"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"setlists":[{"id":"sl-1","event_date":"2025-06-14","venue":{"name":"Club X","city":"Berlin"},"sets":[{"name":"","songs":[{"name":"Opener"},{"name":"Closer"}]}]}],"total":1,"page":1,"per_page":20}`))
	}))
	defer srv.Close()

	cfg := config.Config{SetlistBaseURL: srv.URL, SetlistAPIKey: "secret", SetlistTimeout: time.Second}
	client := NewSetlistClient(cfg, testGuard("setlists"))

	page, err := client.SearchSetlists(context.Background(), "Radiohead", 0)
	require.NoError(t, err)
	require.Len(t, page.Setlists, 1)
	require.Equal(t, "sl-1", page.Setlists[0].ID)
	require.Len(t, page.Setlists[0].Sets[0].Songs, 2)
}

func TestGuardTripsBreakerAndFailsFast(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	lim := ratelimit.NewProviderLimiter("events", 1000, 1000, time.Second)
	br := breaker.New(breaker.Settings{Name: "events-guard-test", ConsecutiveFailures: 3, Cooldown: time.Minute})
	guard := NewGuard("events", lim, br)

	cfg := config.Config{EventsBaseURL: srv.URL, EventsTimeout: time.Second}
	client := NewEventsClient(cfg, guard)

	for i := 0; i < 3; i++ {
		_, err := client.GetAttraction(context.Background(), "attr")
		require.ErrorIs(t, err, pipeline.ErrProviderTransient)
	}
	require.Equal(t, 3, calls)

	// Tripped: rejected before the request leaves the process.
	_, err := client.GetAttraction(context.Background(), "attr")
	require.ErrorIs(t, err, pipeline.ErrCircuitOpen)
	require.Equal(t, 3, calls)
	require.Equal(t, "open", guard.BreakerState())
}
