package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/models"
	"gorm.io/gorm"
)

// SongInput is one normalized setlist entry.
type SongInput struct {
	Title          string
	SpotifyTrackID string
	Position       int
	IsEncore       bool
}

type SetlistService struct {
	db       *gorm.DB
	elevated *gorm.DB
	cfg      *config.Config
	oplog    *OpLogService
}

func NewSetlistService(db, elevated *gorm.DB, cfg *config.Config, oplog *OpLogService) *SetlistService {
	return &SetlistService{db: db, elevated: elevated, cfg: cfg, oplog: oplog}
}

// GetSetlistByShow returns the show's setlist with ordered songs, or
// ErrNotFound.
func (s *SetlistService) GetSetlistByShow(showID uuid.UUID) (*models.Setlist, error) {
	var setlist models.Setlist
	err := s.db.Preload("Songs", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&setlist, "show_id = ?", showID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &setlist, nil
}

// SaveSetlist ensures the one setlist row for a show exists and carries the
// external id when known. Concurrent creates for the same show converge on
// the unique show_id index: losers requery and return the winner's row.
func (s *SetlistService) SaveSetlist(ctx context.Context, showID uuid.UUID, setlistFMID string) (*models.Setlist, error) {
	if showID == uuid.Nil {
		return nil, errors.New("setlist requires a show")
	}

	var existing models.Setlist
	err := s.db.First(&existing, "show_id = ?", showID).Error
	switch {
	case err == nil:
		if setlistFMID != "" && existing.SetlistFMID == nil {
			update := s.db.WithContext(ctx).Model(&existing).Update("setlistfm_id", setlistFMID)
			if update.Error != nil && !isDuplicateKeyError(update.Error) {
				return nil, update.Error
			}
			existing.SetlistFMID = strPtr(setlistFMID)
		}
		return &existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	row := &models.Setlist{
		ShowID:      showID,
		SetlistFMID: strPtr(setlistFMID),
	}
	cerr := s.db.WithContext(ctx).Create(row).Error
	if cerr != nil && isPermissionError(cerr) && s.elevated != nil {
		cerr = s.elevated.WithContext(ctx).Create(row).Error
	}
	if cerr != nil {
		if isDuplicateKeyError(cerr) {
			// Benign race: someone else created the setlist for this show.
			var winner models.Setlist
			if ferr := s.db.First(&winner, "show_id = ?", showID).Error; ferr == nil {
				return &winner, nil
			}
		}
		return nil, cerr
	}
	return row, nil
}

// ReplaceSongs writes the flattened song list for a setlist. Existing songs
// are matched by position so vote counters survive re-imports of the same
// concert; titles are refreshed in place and trailing leftovers removed.
func (s *SetlistService) ReplaceSongs(ctx context.Context, setlistID uuid.UUID, songs []SongInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.SetlistSong
		if err := tx.Where("setlist_id = ?", setlistID).Order("position ASC").Find(&existing).Error; err != nil {
			return err
		}
		byPosition := make(map[int]*models.SetlistSong, len(existing))
		for i := range existing {
			byPosition[existing[i].Position] = &existing[i]
		}

		for _, in := range songs {
			if current, ok := byPosition[in.Position]; ok {
				if current.Title == in.Title && current.IsEncore == in.IsEncore &&
					(in.SpotifyTrackID == "" || current.SpotifyTrackID != nil) {
					continue
				}
				updates := map[string]interface{}{
					"title":     in.Title,
					"is_encore": in.IsEncore,
				}
				if in.SpotifyTrackID != "" {
					updates["spotify_track_id"] = in.SpotifyTrackID
				}
				if err := tx.Model(current).Updates(updates).Error; err != nil {
					return err
				}
				continue
			}
			song := models.SetlistSong{
				SetlistID:      setlistID,
				Title:          in.Title,
				SpotifyTrackID: strPtr(in.SpotifyTrackID),
				Position:       in.Position,
				IsEncore:       in.IsEncore,
			}
			if err := tx.Create(&song).Error; err != nil {
				return err
			}
		}

		if len(songs) > 0 {
			if err := tx.Where("setlist_id = ? AND position >= ?", setlistID, len(songs)).
				Delete(&models.SetlistSong{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MatchSpotifyTracks fills spotify track ids on song inputs from an
// artist's cached catalog, matching case-insensitively on title.
func MatchSpotifyTracks(songs []SongInput, catalog []models.StoredTrack) []SongInput {
	if len(catalog) == 0 {
		return songs
	}
	byTitle := make(map[string]string, len(catalog))
	for _, t := range catalog {
		byTitle[strings.ToLower(t.Name)] = t.SpotifyID
	}
	for i := range songs {
		if songs[i].SpotifyTrackID != "" {
			continue
		}
		if id, ok := byTitle[strings.ToLower(songs[i].Title)]; ok {
			songs[i].SpotifyTrackID = id
		}
	}
	return songs
}

// ArtistSetlistData is the cached payload for the artist setlist endpoint.
type ArtistSetlistData struct {
	Artist *models.Artist `json:"artist"`
	Shows  []*models.Show `json:"shows"`
}

// GetArtistSetlists returns everything stored locally for an artist's
// shows and setlists. sparse reports whether the local data is thin enough
// (< 2 shows) that the caller should trigger a background refresh.
func (s *SetlistService) GetArtistSetlists(artistID uuid.UUID) (data *ArtistSetlistData, sparse bool, err error) {
	var artist models.Artist
	if err := s.db.First(&artist, "id = ?", artistID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}

	var shows []*models.Show
	err = s.db.Preload("Venue").
		Preload("Setlist").
		Preload("Setlist.Songs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("artist_id = ?", artistID).
		Order("date DESC").
		Find(&shows).Error
	if err != nil {
		return nil, false, err
	}

	return &ArtistSetlistData{Artist: &artist, Shows: shows}, len(shows) < 2, nil
}

// TouchUpdatedAt bumps a setlist's updated_at after its songs change.
func (s *SetlistService) TouchUpdatedAt(ctx context.Context, setlistID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Setlist{}).
		Where("id = ?", setlistID).
		Update("updated_at", time.Now().UTC()).Error
}
