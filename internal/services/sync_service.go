package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/models"
	"gorm.io/gorm"
)

// ErrSyncNotEligible is returned when an entity's cooldown has not elapsed
// and the caller did not force the run.
var ErrSyncNotEligible = errors.New("entity is not yet eligible for sync")

// ErrInvalidEntity is returned when the caller names an unknown entity type
// or a malformed entity id. It is a caller mistake, not a sync failure.
var ErrInvalidEntity = errors.New("invalid sync entity")

// SyncOptions tune one orchestration run.
type SyncOptions struct {
	Force        bool `json:"force,omitempty"`
	SkipShows    bool `json:"skip_shows,omitempty"`
	SkipSetlists bool `json:"skip_setlists,omitempty"`
	MaxSetlists  int  `json:"max_setlists,omitempty"`
}

// SyncResult reports aggregate counts. Partial success is the normal case:
// one bad dependent never aborts the rest.
type SyncResult struct {
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id"`
	Processed  int      `json:"processed"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

func (r *SyncResult) recordFailure(what string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", what, err))
}

// SyncService sequences reconciliation for a parent entity and its
// dependents, parent first, inside one tracked task.
type SyncService struct {
	db       *gorm.DB
	cfg      *config.Config
	spotify  *SpotifyService
	tm       *TicketmasterService
	sfm      *SetlistFMService
	artists  *ArtistService
	venues   *VenueService
	shows    *ShowService
	setlists *SetlistService
	oplog    *OpLogService
}

func NewSyncService(db *gorm.DB, cfg *config.Config, spotify *SpotifyService, tm *TicketmasterService, sfm *SetlistFMService,
	artists *ArtistService, venues *VenueService, shows *ShowService, setlists *SetlistService, oplog *OpLogService) *SyncService {
	return &SyncService{
		db:       db,
		cfg:      cfg,
		spotify:  spotify,
		tm:       tm,
		sfm:      sfm,
		artists:  artists,
		venues:   venues,
		shows:    shows,
		setlists: setlists,
		oplog:    oplog,
	}
}

// Run executes one sync task for the given entity, walking the
// pending → in_progress → (completed|failed) machine. The task row is
// created before any work starts so concurrent duplicates can see it.
func (s *SyncService) Run(ctx context.Context, entityType, entityID string, opts SyncOptions) (*SyncResult, error) {
	switch entityType {
	case models.EntityTypeArtist, models.EntityTypeShow, models.EntityTypeVenue, models.EntityTypeSetlist:
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidEntity, entityType)
	}
	id, err := uuid.Parse(entityID)
	if err != nil {
		return nil, fmt.Errorf("%w: entity id %q", ErrInvalidEntity, entityID)
	}

	if !opts.Force {
		eligible, err := s.checkEligibility(entityType, entityID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			return nil, ErrSyncNotEligible
		}
	}

	task := &models.SyncTask{EntityType: entityType, EntityID: entityID, Status: models.SyncStatusPending}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s.db.Model(task).Updates(map[string]interface{}{
		"status":     models.SyncStatusInProgress,
		"started_at": now,
	})

	var result *SyncResult
	switch entityType {
	case models.EntityTypeArtist:
		result, err = s.SyncArtist(ctx, id, opts)
	case models.EntityTypeVenue:
		result, err = s.SyncVenue(ctx, id, "", opts)
	case models.EntityTypeShow:
		result, err = s.SyncShow(ctx, id)
	case models.EntityTypeSetlist:
		result, err = s.SyncSetlist(ctx, id)
	}

	finished := time.Now().UTC()
	if err != nil {
		s.db.Model(task).Updates(map[string]interface{}{
			"status":      models.SyncStatusFailed,
			"error":       err.Error(),
			"finished_at": finished,
		})
		s.recordState(entityType, entityID, models.SyncStatusFailed)
		if s.oplog != nil {
			s.oplog.RecordError("sync_"+entityType, err.Error())
		}
		return nil, err
	}

	payload, _ := json.Marshal(result)
	s.db.Model(task).Updates(map[string]interface{}{
		"status":      models.SyncStatusCompleted,
		"result":      string(payload),
		"finished_at": finished,
	})
	s.recordState(entityType, entityID, models.SyncStatusCompleted)
	return result, nil
}

func (s *SyncService) checkEligibility(entityType, entityID string) (bool, error) {
	var state models.SyncState
	err := s.db.First(&state, "entity_type = ? AND entity_id = ?", entityType, entityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return state.Eligible(time.Now().UTC()), nil
}

func (s *SyncService) recordState(entityType, entityID, status string) {
	now := time.Now().UTC()
	next := now.Add(s.cfg.SyncCooldown)

	var state models.SyncState
	err := s.db.First(&state, "entity_type = ? AND entity_id = ?", entityType, entityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.SyncState{
			EntityType:     entityType,
			EntityID:       entityID,
			Status:         status,
			LastSyncedAt:   &now,
			NextEligibleAt: &next,
		}
		if cerr := s.db.Create(&state).Error; cerr != nil && !isDuplicateKeyError(cerr) {
			log.Printf("sync state create failed for %s/%s: %v", entityType, entityID, cerr)
		}
		return
	}
	if err != nil {
		log.Printf("sync state read failed for %s/%s: %v", entityType, entityID, err)
		return
	}
	s.db.Model(&state).Updates(map[string]interface{}{
		"status":           status,
		"last_synced_at":   now,
		"next_eligible_at": next,
	})
}

// SyncArtist reconciles the artist row first, then its shows from
// Ticketmaster and its recent setlists from Setlist.fm. Dependent failures
// are counted, not propagated.
func (s *SyncService) SyncArtist(ctx context.Context, artistID uuid.UUID, opts SyncOptions) (*SyncResult, error) {
	result := &SyncResult{EntityType: models.EntityTypeArtist, EntityID: artistID.String()}

	artist, err := s.artists.GetArtistByID(artistID)
	if err != nil {
		return nil, err
	}

	if enriched, err := s.enrichArtist(ctx, artist); err != nil {
		// Enrichment is best-effort; the stored row still anchors the run.
		result.recordFailure("artist enrichment", err)
	} else {
		artist = enriched
	}
	result.Processed++
	result.Updated++

	if !opts.SkipShows && artist.TicketmasterID != nil {
		s.syncArtistShows(ctx, artist, result)
	}
	if !opts.SkipSetlists {
		s.syncArtistSetlists(ctx, artist, opts, result)
	}
	return result, nil
}

// enrichArtist fills missing external ids from the adapters, then
// reconciles the fresher data.
func (s *SyncService) enrichArtist(ctx context.Context, artist *models.Artist) (*models.Artist, error) {
	in := ArtistInput{ID: artist.ID.String(), Name: artist.Name}

	if artist.SpotifyID == nil {
		if sa, err := s.spotify.SearchArtist(ctx, artist.Name); err == nil {
			spotifyIn := ArtistInputFromSpotify(sa)
			spotifyIn.ID = in.ID
			in = spotifyIn
		}
	} else if sa, err := s.spotify.GetArtist(ctx, *artist.SpotifyID); err == nil {
		spotifyIn := ArtistInputFromSpotify(sa)
		spotifyIn.ID = in.ID
		in = spotifyIn
	}

	if artist.TicketmasterID == nil {
		if attractionID, err := s.tm.SearchAttraction(ctx, artist.Name); err == nil {
			in.TicketmasterID = attractionID
		}
	}
	if artist.MBID == nil {
		if mbid, err := s.sfm.SearchArtistMBID(ctx, artist.Name); err == nil {
			in.MBID = mbid
		}
	}

	return s.artists.SaveArtist(ctx, in)
}

func (s *SyncService) syncArtistShows(ctx context.Context, artist *models.Artist, result *SyncResult) {
	events, err := s.tm.EventsByAttraction(ctx, *artist.TicketmasterID)
	if err != nil {
		result.recordFailure("ticketmaster events", err)
		return
	}

	for _, ev := range events {
		result.Processed++

		var venueID *uuid.UUID
		if len(ev.Embedded.Venues) > 0 {
			venue, verr := s.venues.SaveVenue(ctx, VenueInputFromTM(&ev.Embedded.Venues[0]))
			if verr != nil {
				result.recordFailure("venue "+ev.Embedded.Venues[0].Name, verr)
			} else {
				venueID = &venue.ID
			}
		}

		existed, cerr := s.showExists(ev.ID)
		if cerr != nil {
			result.recordFailure("show lookup "+ev.Name, cerr)
			continue
		}

		if _, serr := s.shows.SaveShow(ctx, ShowInputFromTMEvent(ev, artist.ID, venueID)); serr != nil {
			result.recordFailure("show "+ev.Name, serr)
			continue
		}
		if existed {
			result.Updated++
		} else {
			result.Created++
		}
	}
}

func (s *SyncService) showExists(ticketmasterID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Show{}).Where("ticketmaster_id = ?", ticketmasterID).Count(&count).Error
	return count > 0, err
}

func (s *SyncService) syncArtistSetlists(ctx context.Context, artist *models.Artist, opts SyncOptions, result *SyncResult) {
	if artist.MBID == nil {
		result.recordFailure("setlists", errors.New("artist has no mbid"))
		return
	}

	maxSetlists := opts.MaxSetlists
	if maxSetlists <= 0 {
		maxSetlists = 20
	}
	setlists, err := s.sfm.RecentArtistSetlists(ctx, *artist.MBID, maxSetlists)
	if err != nil && len(setlists) == 0 {
		result.recordFailure("setlist.fm setlists", err)
		return
	}

	for _, sl := range setlists {
		result.Processed++
		if perr := s.processSetlist(ctx, artist, sl); perr != nil {
			result.recordFailure("setlist "+sl.ID, perr)
			continue
		}
		result.Created++
	}
}

// processSetlist reconciles one imported concert: venue, show, setlist row,
// then the flattened songs.
func (s *SyncService) processSetlist(ctx context.Context, artist *models.Artist, sl SFMSetlist) error {
	if sl.Venue.Name == "" {
		return errors.New("setlist has no venue")
	}
	date := ParseSFMEventDate(sl.EventDate)
	if date.IsZero() {
		return fmt.Errorf("unparseable event date %q", sl.EventDate)
	}

	venue, err := s.venues.SaveVenue(ctx, VenueInputFromSFM(&sl))
	if err != nil {
		return fmt.Errorf("venue: %w", err)
	}

	status := models.ShowStatusCompleted
	if date.After(time.Now().UTC()) {
		status = models.ShowStatusUpcoming
	}
	show, err := s.shows.SaveShow(ctx, ShowInput{
		Name:     fmt.Sprintf("%s at %s", artist.Name, venue.Name),
		Date:     date,
		ArtistID: artist.ID,
		VenueID:  &venue.ID,
		Status:   status,
	})
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}

	setlist, err := s.setlists.SaveSetlist(ctx, show.ID, sl.ID)
	if err != nil {
		return fmt.Errorf("setlist: %w", err)
	}

	songs := MatchSpotifyTracks(FlattenSFMSets(sl.Sets.Set), artist.StoredTracks)
	if len(songs) == 0 {
		return nil
	}
	if err := s.setlists.ReplaceSongs(ctx, setlist.ID, songs); err != nil {
		return fmt.Errorf("songs: %w", err)
	}
	return s.setlists.TouchUpdatedAt(ctx, setlist.ID)
}

// SyncVenue reconciles a venue and every Ticketmaster event at it.
// tmVenueID overrides the stored external id when provided.
func (s *SyncService) SyncVenue(ctx context.Context, venueID uuid.UUID, tmVenueID string, opts SyncOptions) (*SyncResult, error) {
	result := &SyncResult{EntityType: models.EntityTypeVenue, EntityID: venueID.String()}

	venue, err := s.venues.GetVenueByID(venueID)
	if err != nil {
		return nil, err
	}

	if tmVenueID == "" {
		if venue.TicketmasterID == nil {
			return nil, errors.New("venue has no ticketmaster id")
		}
		tmVenueID = *venue.TicketmasterID
	}

	if tmVenue, verr := s.tm.GetVenue(ctx, tmVenueID); verr == nil {
		in := VenueInputFromTM(tmVenue)
		in.ID = venue.ID.String()
		if venue, err = s.venues.SaveVenue(ctx, in); err != nil {
			return nil, err
		}
	}
	result.Processed++
	result.Updated++

	events, err := s.tm.EventsByVenue(ctx, tmVenueID)
	if err != nil {
		result.recordFailure("ticketmaster events", err)
		return result, nil
	}

	for _, ev := range events {
		result.Processed++

		if len(ev.Embedded.Attractions) == 0 {
			result.recordFailure("show "+ev.Name, errors.New("event has no attraction"))
			continue
		}
		attraction := ev.Embedded.Attractions[0]
		artist, aerr := s.artists.SaveArtist(ctx, ArtistInput{
			Name:           attraction.Name,
			TicketmasterID: attraction.ID,
		})
		if aerr != nil {
			result.recordFailure("artist "+attraction.Name, aerr)
			continue
		}

		existed, cerr := s.showExists(ev.ID)
		if cerr != nil {
			result.recordFailure("show lookup "+ev.Name, cerr)
			continue
		}
		if _, serr := s.shows.SaveShow(ctx, ShowInputFromTMEvent(ev, artist.ID, &venue.ID)); serr != nil {
			result.recordFailure("show "+ev.Name, serr)
			continue
		}
		if existed {
			result.Updated++
		} else {
			result.Created++
		}
	}
	return result, nil
}

// SyncShow refreshes a single show from Ticketmaster.
func (s *SyncService) SyncShow(ctx context.Context, showID uuid.UUID) (*SyncResult, error) {
	result := &SyncResult{EntityType: models.EntityTypeShow, EntityID: showID.String()}

	show, err := s.shows.GetShowByID(showID)
	if err != nil {
		return nil, err
	}
	if show.TicketmasterID == nil {
		return nil, errors.New("show has no ticketmaster id")
	}

	ev, err := s.tm.GetEvent(ctx, *show.TicketmasterID)
	if err != nil {
		return nil, err
	}

	in := ShowInputFromTMEvent(*ev, show.ArtistID, show.VenueID)
	in.ID = show.ID.String()
	if _, err := s.shows.SaveShow(ctx, in); err != nil {
		return nil, err
	}
	result.Processed++
	result.Updated++
	return result, nil
}

// SyncSetlist re-imports one setlist's songs from Setlist.fm.
func (s *SyncService) SyncSetlist(ctx context.Context, setlistID uuid.UUID) (*SyncResult, error) {
	result := &SyncResult{EntityType: models.EntityTypeSetlist, EntityID: setlistID.String()}

	var setlist models.Setlist
	if err := s.db.First(&setlist, "id = ?", setlistID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if setlist.SetlistFMID == nil {
		return nil, errors.New("setlist has no setlist.fm id")
	}

	sl, err := s.sfm.GetSetlist(ctx, *setlist.SetlistFMID)
	if err != nil {
		return nil, err
	}

	show, err := s.shows.GetShowByID(setlist.ShowID)
	if err != nil {
		return nil, err
	}

	var catalog []models.StoredTrack
	if show.Artist != nil {
		catalog = show.Artist.StoredTracks
	}
	songs := MatchSpotifyTracks(FlattenSFMSets(sl.Sets.Set), catalog)
	if err := s.setlists.ReplaceSongs(ctx, setlist.ID, songs); err != nil {
		return nil, err
	}
	if err := s.setlists.TouchUpdatedAt(ctx, setlist.ID); err != nil {
		return nil, err
	}
	result.Processed++
	result.Updated++
	return result, nil
}

// StaleArtists lists artists whose last sync predates the staleness window,
// for the cron-style runner.
func (s *SyncService) StaleArtists(limit int) ([]*models.Artist, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().UTC().Add(-s.cfg.ArtistStaleness)
	var artists []*models.Artist
	err := s.db.Where("last_synced_at IS NULL OR last_synced_at < ?", cutoff).
		Order("last_synced_at ASC NULLS FIRST").
		Limit(limit).
		Find(&artists).Error
	return artists, err
}
