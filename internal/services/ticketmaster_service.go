package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/theset/backend/internal/config"
)

const ticketmasterBaseURL = "https://app.ticketmaster.com/discovery/v2"

// TicketmasterService talks to the Ticketmaster Discovery API. The API key
// travels as the apikey query parameter on every call.
type TicketmasterService struct {
	cfg     *config.Config
	client  *http.Client
	baseURL string
}

// TMVenue mirrors the Discovery venue object.
type TMVenue struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PostalCode string `json:"postalCode"`
	City       struct {
		Name string `json:"name"`
	} `json:"city"`
	State struct {
		Name string `json:"name"`
	} `json:"state"`
	Country struct {
		Name string `json:"name"`
	} `json:"country"`
	Address struct {
		Line1 string `json:"line1"`
	} `json:"address"`
	Location struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
}

// TMEvent mirrors the Discovery event object.
type TMEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			DateTime  string `json:"dateTime"`
			LocalDate string `json:"localDate"`
		} `json:"start"`
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	} `json:"dates"`
	Embedded struct {
		Venues      []TMVenue `json:"venues"`
		Attractions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"attractions"`
	} `json:"_embedded"`
}

type tmEventsPage struct {
	Embedded struct {
		Events []TMEvent `json:"events"`
	} `json:"_embedded"`
	Page struct {
		TotalPages int `json:"totalPages"`
		Number     int `json:"number"`
	} `json:"page"`
}

func NewTicketmasterService(cfg *config.Config) *TicketmasterService {
	return &TicketmasterService{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.ExternalAPITimeout},
		baseURL: ticketmasterBaseURL,
	}
}

func (s *TicketmasterService) doRequest(ctx context.Context, path string, params url.Values, result interface{}) error {
	if s.cfg.TicketmasterAPIKey == "" {
		return fmt.Errorf("ticketmaster api key missing")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", s.cfg.TicketmasterAPIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ticketmaster request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ticketmaster API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode ticketmaster response: %w", err)
		}
	}
	return nil
}

// EventsByAttraction retrieves upcoming events for an attraction
// (Ticketmaster's artist id), following pagination.
func (s *TicketmasterService) EventsByAttraction(ctx context.Context, attractionID string) ([]TMEvent, error) {
	return s.eventPages(ctx, url.Values{"attractionId": {attractionID}, "size": {"100"}, "sort": {"date,asc"}})
}

// EventsByVenue retrieves upcoming events at a venue.
func (s *TicketmasterService) EventsByVenue(ctx context.Context, venueID string) ([]TMEvent, error) {
	return s.eventPages(ctx, url.Values{"venueId": {venueID}, "size": {"100"}, "sort": {"date,asc"}})
}

func (s *TicketmasterService) eventPages(ctx context.Context, params url.Values) ([]TMEvent, error) {
	var all []TMEvent
	for page := 0; ; page++ {
		params.Set("page", fmt.Sprintf("%d", page))
		var resp tmEventsPage
		if err := s.doRequest(ctx, "/events.json", params, &resp); err != nil {
			return all, err
		}
		all = append(all, resp.Embedded.Events...)
		if page+1 >= resp.Page.TotalPages {
			return all, nil
		}
	}
}

// GetEvent retrieves a single event by Ticketmaster id.
func (s *TicketmasterService) GetEvent(ctx context.Context, eventID string) (*TMEvent, error) {
	var event TMEvent
	if err := s.doRequest(ctx, fmt.Sprintf("/events/%s.json", eventID), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetVenue retrieves a single venue by Ticketmaster id.
func (s *TicketmasterService) GetVenue(ctx context.Context, venueID string) (*TMVenue, error) {
	var venue TMVenue
	if err := s.doRequest(ctx, fmt.Sprintf("/venues/%s.json", venueID), nil, &venue); err != nil {
		return nil, err
	}
	return &venue, nil
}

// SearchAttraction finds the Ticketmaster attraction id for an artist name.
func (s *TicketmasterService) SearchAttraction(ctx context.Context, name string) (string, error) {
	var resp struct {
		Embedded struct {
			Attractions []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"attractions"`
		} `json:"_embedded"`
	}
	params := url.Values{"keyword": {name}, "size": {"1"}}
	if err := s.doRequest(ctx, "/attractions.json", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Embedded.Attractions) == 0 {
		return "", fmt.Errorf("no ticketmaster attraction found for %q", name)
	}
	return resp.Embedded.Attractions[0].ID, nil
}

// ParseEventDate resolves the best available timestamp on an event.
func ParseEventDate(ev TMEvent) time.Time {
	if ev.Dates.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, ev.Dates.Start.DateTime); err == nil {
			return t
		}
	}
	if ev.Dates.Start.LocalDate != "" {
		if t, err := time.Parse("2006-01-02", ev.Dates.Start.LocalDate); err == nil {
			return t
		}
	}
	return time.Time{}
}
