package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/models"
	"github.com/theset/backend/pkg/validation"
	"gorm.io/gorm"
)

// ArtistInput is the normalized candidate record produced from vendor JSON
// before any reconciliation logic runs. Absent fields stay zero-valued and
// never overwrite stored data.
type ArtistInput struct {
	ID             string
	Name           string
	SpotifyID      string
	TicketmasterID string
	MBID           string
	Popularity     int
	Followers      int
	Genres         []string
	ImageURL       string
}

type ArtistService struct {
	db       *gorm.DB
	elevated *gorm.DB
	cfg      *config.Config
	spotify  *SpotifyService
	runner   *BackgroundRunner
	oplog    *OpLogService
}

func NewArtistService(db, elevated *gorm.DB, cfg *config.Config, spotify *SpotifyService, runner *BackgroundRunner, oplog *OpLogService) *ArtistService {
	return &ArtistService{
		db:       db,
		elevated: elevated,
		cfg:      cfg,
		spotify:  spotify,
		runner:   runner,
		oplog:    oplog,
	}
}

// GetArtistByID retrieves an artist by primary id.
func (s *ArtistService) GetArtistByID(artistID uuid.UUID) (*models.Artist, error) {
	var artist models.Artist
	if err := s.db.First(&artist, "id = ?", artistID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &artist, nil
}

// findExisting resolves the stored row a candidate refers to, trying the
// primary id first and then each external identifier.
func (s *ArtistService) findExisting(in ArtistInput) (*models.Artist, error) {
	var artist models.Artist

	if in.ID != "" {
		if id, err := uuid.Parse(in.ID); err == nil {
			if err := s.db.First(&artist, "id = ?", id).Error; err == nil {
				return &artist, nil
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
	}
	for column, value := range map[string]string{
		"spotify_id":      in.SpotifyID,
		"ticketmaster_id": in.TicketmasterID,
		"mbid":            in.MBID,
	} {
		if value == "" {
			continue
		}
		if err := s.db.First(&artist, column+" = ?", value).Error; err == nil {
			return &artist, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// hasStrongerData reports whether the candidate carries an external id the
// stored row lacks. Stronger data overrides the freshness window.
func hasStrongerData(existing *models.Artist, in ArtistInput) bool {
	if in.SpotifyID != "" && existing.SpotifyID == nil {
		return true
	}
	if in.TicketmasterID != "" && existing.TicketmasterID == nil {
		return true
	}
	if in.MBID != "" && existing.MBID == nil {
		return true
	}
	return false
}

// SaveArtist reconciles a candidate artist record against the store:
// staleness-gated, coalesce-merged, idempotent. Write failures are logged
// and swallowed; the caller always gets the best-effort record back so a
// background sync problem never blocks the user flow.
func (s *ArtistService) SaveArtist(ctx context.Context, in ArtistInput) (*models.Artist, error) {
	in.Name = validation.SanitizeName(in.Name)
	if !validation.ValidateEntityName(in.Name) {
		return nil, errors.New("artist name is required")
	}
	if in.SpotifyID != "" && !validation.ValidateSpotifyID(in.SpotifyID) {
		return nil, fmt.Errorf("invalid spotify id %q", in.SpotifyID)
	}
	if in.MBID != "" && !validation.ValidateMBID(in.MBID) {
		return nil, fmt.Errorf("invalid mbid %q", in.MBID)
	}

	existing, err := s.findExisting(in)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.SyncedWithin(s.cfg.ArtistStaleness) && !hasStrongerData(existing, in) {
		return existing, nil
	}

	row := s.merge(existing, in)

	// Known rows upsert on the primary key; first-time inserts arbitrate
	// on the strongest external id so concurrent discoveries converge.
	var conflict = conflictOn("id", artistUpdateColumns...)
	if existing == nil {
		switch {
		case row.SpotifyID != nil:
			conflict = conflictOn("spotify_id", artistUpdateColumns...)
		case row.TicketmasterID != nil:
			conflict = conflictOn("ticketmaster_id", artistUpdateColumns...)
		case row.MBID != nil:
			conflict = conflictOn("mbid", artistUpdateColumns...)
		}
	}

	hadSpotifyID := existing != nil && existing.SpotifyID != nil

	if err := upsertWithFallback(ctx, s.db, s.elevated, conflict, row); err != nil {
		if isDuplicateKeyError(err) {
			// Lost a creation race on a non-arbiter unique column; the
			// winner's row is the one we wanted.
			if winner, ferr := s.findExisting(in); ferr == nil && winner != nil {
				return winner, nil
			}
		}
		log.Printf("artist upsert failed for %s: %v", row.Name, err)
		if s.oplog != nil {
			s.oplog.RecordError("artist_reconcile", err.Error())
		}
		return row, nil
	}

	// A newly available catalog id means the track cache is worth
	// fetching; the caller does not wait for it.
	if row.SpotifyID != nil && (!hadSpotifyID || !row.TracksSyncedWithin(s.cfg.TrackStaleness)) {
		s.submitTrackRefresh(row.ID, *row.SpotifyID)
	}

	return row, nil
}

var artistUpdateColumns = []string{
	"name", "spotify_id", "ticketmaster_id", "mbid", "popularity",
	"followers", "genres", "image_url", "last_synced_at", "updated_at",
}

// merge folds the candidate onto the stored row, preserving stored values
// wherever the candidate is absent.
func (s *ArtistService) merge(existing *models.Artist, in ArtistInput) *models.Artist {
	now := time.Now().UTC()
	row := &models.Artist{}
	if existing != nil {
		*row = *existing
	} else if in.ID != "" {
		if id, err := uuid.Parse(in.ID); err == nil {
			row.ID = id
		}
	}

	row.Name = in.Name
	if in.SpotifyID != "" {
		row.SpotifyID = strPtr(in.SpotifyID)
	}
	if in.TicketmasterID != "" {
		row.TicketmasterID = strPtr(in.TicketmasterID)
	}
	if in.MBID != "" {
		row.MBID = strPtr(in.MBID)
	}
	if in.Popularity > 0 {
		row.Popularity = in.Popularity
	}
	if in.Followers > 0 {
		row.Followers = in.Followers
	}
	if len(in.Genres) > 0 {
		row.Genres = in.Genres
	}
	if in.ImageURL != "" {
		row.ImageURL = in.ImageURL
	}
	row.LastSyncedAt = &now
	return row
}

func (s *ArtistService) submitTrackRefresh(artistID uuid.UUID, spotifyID string) {
	if s.runner == nil || s.spotify == nil {
		return
	}
	s.runner.Submit("track_catalog_refresh", func(ctx context.Context) error {
		return s.RefreshTrackCatalog(ctx, artistID, spotifyID)
	})
}

// RefreshTrackCatalog fetches an artist's top tracks and caches them on the
// row. Runs in the background; its failures never reach a request.
func (s *ArtistService) RefreshTrackCatalog(ctx context.Context, artistID uuid.UUID, spotifyID string) error {
	tracks, err := s.spotify.GetArtistTopTracks(ctx, spotifyID, "")
	if err != nil {
		return fmt.Errorf("track catalog fetch for %s: %w", spotifyID, err)
	}

	stored := make([]models.StoredTrack, 0, len(tracks))
	for _, t := range tracks {
		stored = append(stored, models.StoredTrack{
			SpotifyID:  t.ID,
			Name:       t.Name,
			Album:      t.Album.Name,
			DurationMS: t.DurationMS,
			Popularity: t.Popularity,
		})
	}

	now := time.Now().UTC()
	updates := models.Artist{StoredTracks: stored, TracksSyncedAt: &now}
	err = s.db.WithContext(ctx).Model(&models.Artist{}).Where("id = ?", artistID).Updates(updates).Error
	if isPermissionError(err) && s.elevated != nil {
		err = s.elevated.WithContext(ctx).Model(&models.Artist{}).Where("id = ?", artistID).Updates(updates).Error
	}
	return err
}
