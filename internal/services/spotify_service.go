package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/theset/backend/internal/config"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyService talks to the Spotify Web API using the client-credentials
// flow. Token refresh is handled by the oauth2 transport.
type SpotifyService struct {
	cfg     *config.Config
	client  *http.Client
	baseURL string
}

type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyFollowers struct {
	Total int `json:"total"`
}

// SpotifyArtist mirrors the vendor artist object.
type SpotifyArtist struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Genres     []string         `json:"genres"`
	Popularity int              `json:"popularity"`
	Followers  spotifyFollowers `json:"followers"`
	Images     []SpotifyImage   `json:"images"`
}

// SpotifyTrack mirrors the vendor track object.
type SpotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	Popularity int    `json:"popularity"`
	Album      struct {
		Name string `json:"name"`
	} `json:"album"`
}

func NewSpotifyService(cfg *config.Config) *SpotifyService {
	ccfg := &clientcredentials.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		TokenURL:     spotifyTokenURL,
	}
	client := ccfg.Client(context.Background())
	client.Timeout = cfg.ExternalAPITimeout

	return &SpotifyService{
		cfg:     cfg,
		client:  client,
		baseURL: spotifyBaseURL,
	}
}

func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("spotify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode spotify response: %w", err)
		}
	}
	return nil
}

// SearchArtist finds the best match for an artist name.
func (s *SpotifyService) SearchArtist(ctx context.Context, name string) (*SpotifyArtist, error) {
	endpoint := fmt.Sprintf("/search?type=artist&limit=1&q=%s", url.QueryEscape(name))

	var response struct {
		Artists struct {
			Items []SpotifyArtist `json:"items"`
		} `json:"artists"`
	}
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	if len(response.Artists.Items) == 0 {
		return nil, fmt.Errorf("no spotify artist found for %q", name)
	}
	return &response.Artists.Items[0], nil
}

// GetArtist retrieves a single artist by Spotify id.
func (s *SpotifyService) GetArtist(ctx context.Context, spotifyID string) (*SpotifyArtist, error) {
	var artist SpotifyArtist
	if err := s.doRequest(ctx, fmt.Sprintf("/artists/%s", spotifyID), &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// GetArtistTopTracks retrieves an artist's top tracks for the given market.
func (s *SpotifyService) GetArtistTopTracks(ctx context.Context, spotifyID, market string) ([]SpotifyTrack, error) {
	if market == "" {
		market = "US"
	}
	endpoint := fmt.Sprintf("/artists/%s/top-tracks?market=%s", spotifyID, url.QueryEscape(market))

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Tracks, nil
}
