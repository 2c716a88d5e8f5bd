package rollup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	v1 "github.com/bookrelay-lab/bookrelay/internal/api/v1"
	"github.com/bookrelay-lab/bookrelay/internal/storage"
)

// Source fetches the qualifying (active booking) events for one year, with
// night-of-stay capped at min(Dec 31, upTo). The materializer treats a
// fetch failure as "skip the year this pass".
type Source interface {
	FetchYear(ctx context.Context, year int, upTo time.Time) ([]*v1.Event, error)
}

// yearWindow returns the night-of-stay bounds for a year, capping the upper
// bound at upTo so the current year is only read through today.
func yearWindow(year int, upTo time.Time) (v1.Date, v1.Date) {
	from := v1.NewDate(year, time.January, 1)
	to := v1.NewDate(year, time.December, 31)
	if today := v1.DateOf(upTo); today.Before(to) {
		to = today
	}
	return from, to
}

// StoreSource reads events from the local event store. Used when the
// materializer runs in the same process as the persistence consumer.
type StoreSource struct {
	store storage.EventStore
}

// NewStoreSource creates a store-backed source.
func NewStoreSource(store storage.EventStore) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) FetchYear(ctx context.Context, year int, upTo time.Time) ([]*v1.Event, error) {
	from, to := yearWindow(year, upTo)
	return s.store.QueryEvents(ctx, v1.EventFilter{
		Status:          v1.StatusBooking,
		NightOfStayFrom: from,
		NightOfStayTo:   to,
	})
}

// HTTPSource reads events from a sibling provider service's /api/events
// endpoint. Used in the two-service topology where the dashboard process
// has no direct access to the event store.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates an HTTP-backed source against the provider base URL.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{baseURL: baseURL, client: client}
}

func (s *HTTPSource) FetchYear(ctx context.Context, year int, upTo time.Time) ([]*v1.Event, error) {
	from, to := yearWindow(year, upTo)

	params := url.Values{}
	params.Set("status", fmt.Sprintf("%d", v1.StatusBooking))
	params.Set("night_of_stay_from", from.String())
	params.Set("night_of_stay_to", to.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/events?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider fetch failed: status %d", resp.StatusCode)
	}

	var events []*v1.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	return events, nil
}
