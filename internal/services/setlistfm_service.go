package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/theset/backend/internal/config"
	"golang.org/x/time/rate"
)

const setlistFMBaseURL = "https://api.setlist.fm/rest/1.0"

// SetlistFMService talks to the Setlist.fm REST API. Setlist.fm enforces a
// strict request budget, so every call waits on a shared limiter (2 req/s,
// i.e. the 500ms courtesy interval) instead of each loop sleeping by hand.
type SetlistFMService struct {
	cfg     *config.Config
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// SFMSong is one song entry inside a set.
type SFMSong struct {
	Name string `json:"name"`
	Info string `json:"info,omitempty"`
	Tape bool   `json:"tape,omitempty"`
}

// SFMSet is one set of a concert (main set or encore).
type SFMSet struct {
	Name   string    `json:"name,omitempty"`
	Encore int       `json:"encore,omitempty"`
	Songs  []SFMSong `json:"song"`
}

// SFMSetlist mirrors the vendor setlist object: nested sets of songs plus
// venue and date metadata.
type SFMSetlist struct {
	ID        string `json:"id"`
	EventDate string `json:"eventDate"` // dd-MM-yyyy
	Artist    struct {
		MBID string `json:"mbid"`
		Name string `json:"name"`
	} `json:"artist"`
	Venue struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		City struct {
			Name    string `json:"name"`
			State   string `json:"state"`
			Country struct {
				Name string `json:"name"`
			} `json:"country"`
			Coords struct {
				Lat  float64 `json:"lat"`
				Long float64 `json:"long"`
			} `json:"coords"`
		} `json:"city"`
	} `json:"venue"`
	Sets struct {
		Set []SFMSet `json:"set"`
	} `json:"sets"`
}

// SFMSetlistsPage is one page of an artist's setlist history.
type SFMSetlistsPage struct {
	Setlists     []SFMSetlist `json:"setlist"`
	Total        int          `json:"total"`
	Page         int          `json:"page"`
	ItemsPerPage int          `json:"itemsPerPage"`
}

func NewSetlistFMService(cfg *config.Config) *SetlistFMService {
	return &SetlistFMService{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.ExternalAPITimeout},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		baseURL: setlistFMBaseURL,
	}
}

func (s *SetlistFMService) doRequest(ctx context.Context, path string, params url.Values, result interface{}) error {
	if s.cfg.SetlistFMAPIKey == "" {
		return fmt.Errorf("setlist.fm api key missing")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", s.cfg.SetlistFMAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("setlist.fm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("setlist.fm API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode setlist.fm response: %w", err)
		}
	}
	return nil
}

// SearchArtistMBID resolves an artist name to a MusicBrainz id.
func (s *SetlistFMService) SearchArtistMBID(ctx context.Context, name string) (string, error) {
	var resp struct {
		Artists []struct {
			MBID string `json:"mbid"`
			Name string `json:"name"`
		} `json:"artist"`
	}
	params := url.Values{"artistName": {name}, "sort": {"relevance"}, "p": {"1"}}
	if err := s.doRequest(ctx, "/search/artists", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Artists) == 0 || resp.Artists[0].MBID == "" {
		return "", fmt.Errorf("no setlist.fm artist found for %q", name)
	}
	return resp.Artists[0].MBID, nil
}

// GetSetlist retrieves a single setlist by Setlist.fm id.
func (s *SetlistFMService) GetSetlist(ctx context.Context, setlistID string) (*SFMSetlist, error) {
	var setlist SFMSetlist
	if err := s.doRequest(ctx, fmt.Sprintf("/setlist/%s", setlistID), nil, &setlist); err != nil {
		return nil, err
	}
	return &setlist, nil
}

// ArtistSetlists retrieves one page of an artist's setlists (1-based).
func (s *SetlistFMService) ArtistSetlists(ctx context.Context, mbid string, page int) (*SFMSetlistsPage, error) {
	if page < 1 {
		page = 1
	}
	var resp SFMSetlistsPage
	params := url.Values{"p": {fmt.Sprintf("%d", page)}}
	if err := s.doRequest(ctx, fmt.Sprintf("/artist/%s/setlists", mbid), params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecentArtistSetlists collects up to maxSetlists of the artist's most
// recent setlists, paging as needed.
func (s *SetlistFMService) RecentArtistSetlists(ctx context.Context, mbid string, maxSetlists int) ([]SFMSetlist, error) {
	var all []SFMSetlist
	for page := 1; len(all) < maxSetlists; page++ {
		resp, err := s.ArtistSetlists(ctx, mbid, page)
		if err != nil {
			return all, err
		}
		all = append(all, resp.Setlists...)
		if page*resp.ItemsPerPage >= resp.Total || len(resp.Setlists) == 0 {
			break
		}
	}
	if len(all) > maxSetlists {
		all = all[:maxSetlists]
	}
	return all, nil
}
