package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/models"
	"github.com/theset/backend/pkg/validation"
	"gorm.io/gorm"
)

// ShowInput is the normalized show candidate built from vendor JSON. The
// artist must already be resolved; the venue may arrive later, leaving the
// show provisional until it does.
type ShowInput struct {
	ID             string
	Name           string
	Date           time.Time
	ArtistID       uuid.UUID
	VenueID        *uuid.UUID
	TicketmasterID string
	TicketURL      string
	Status         string

	// TicketmasterVenueID lets a show reference a venue that has not been
	// reconciled yet; SaveShow schedules the venue sync in the background.
	TicketmasterVenueID string
}

type ShowService struct {
	db       *gorm.DB
	elevated *gorm.DB
	cfg      *config.Config
	venues   *VenueService
	tm       *TicketmasterService
	runner   *BackgroundRunner
	oplog    *OpLogService
}

func NewShowService(db, elevated *gorm.DB, cfg *config.Config, venues *VenueService, tm *TicketmasterService, runner *BackgroundRunner, oplog *OpLogService) *ShowService {
	return &ShowService{
		db:       db,
		elevated: elevated,
		cfg:      cfg,
		venues:   venues,
		tm:       tm,
		runner:   runner,
		oplog:    oplog,
	}
}

// GetShowByID retrieves a show with its relations.
func (s *ShowService) GetShowByID(showID uuid.UUID) (*models.Show, error) {
	var show models.Show
	err := s.db.Preload("Artist").Preload("Venue").First(&show, "id = ?", showID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &show, nil
}

// GetUpcomingShows lists display-ready upcoming shows, soonest first.
func (s *ShowService) GetUpcomingShows(offset, limit int) ([]*models.Show, int64, error) {
	var shows []*models.Show
	var total int64

	now := time.Now().UTC()
	query := s.db.Model(&models.Show{}).
		Scopes(models.ScopeDisplayReady).
		Where("date > ? AND status = ?", now, models.ShowStatusUpcoming)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Preload("Artist").Preload("Venue").
		Offset(offset).Limit(limit).Order("date ASC").Find(&shows).Error; err != nil {
		return nil, 0, err
	}
	return shows, total, nil
}

// GetShowsByArtist lists an artist's shows, newest date first.
func (s *ShowService) GetShowsByArtist(artistID uuid.UUID) ([]*models.Show, error) {
	var shows []*models.Show
	err := s.db.Preload("Venue").
		Where("artist_id = ?", artistID).
		Order("date DESC").Find(&shows).Error
	return shows, err
}

func (s *ShowService) findExisting(in ShowInput) (*models.Show, error) {
	var show models.Show

	if in.ID != "" {
		if id, err := uuid.Parse(in.ID); err == nil {
			if err := s.db.First(&show, "id = ?", id).Error; err == nil {
				return &show, nil
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
	}
	if in.TicketmasterID != "" {
		if err := s.db.First(&show, "ticketmaster_id = ?", in.TicketmasterID).Error; err == nil {
			return &show, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	// Fall back to the natural (artist, date, venue) key so repeated
	// imports without an external id stay idempotent.
	if in.ArtistID != uuid.Nil && !in.Date.IsZero() {
		q := s.db.Where("artist_id = ? AND date = ?", in.ArtistID, in.Date)
		if in.VenueID != nil {
			q = q.Where("venue_id = ?", *in.VenueID)
		}
		if err := q.First(&show).Error; err == nil {
			return &show, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

var showUpdateColumns = []string{
	"name", "date", "artist_id", "venue_id", "ticketmaster_id",
	"ticket_url", "status", "last_synced_at", "updated_at",
}

// SaveShow reconciles a candidate show. A show with no resolvable artist is
// rejected; a show with no venue is stored provisionally and a background
// venue sync is scheduled when a Ticketmaster venue id is known.
func (s *ShowService) SaveShow(ctx context.Context, in ShowInput) (*models.Show, error) {
	in.Name = validation.SanitizeName(in.Name)
	if !validation.ValidateEntityName(in.Name) {
		return nil, errors.New("show name is required")
	}
	if in.ArtistID == uuid.Nil {
		return nil, errors.New("show requires a resolved artist")
	}

	existing, err := s.findExisting(in)
	if err != nil {
		return nil, err
	}

	newExternal := in.TicketmasterID != "" && (existing == nil || existing.TicketmasterID == nil)
	newVenue := in.VenueID != nil && (existing == nil || existing.VenueID == nil)
	if existing != nil && existing.SyncedWithin(s.cfg.ShowStaleness) && !newExternal && !newVenue {
		return existing, nil
	}

	now := time.Now().UTC()
	row := &models.Show{}
	if existing != nil {
		*row = *existing
	} else if in.ID != "" {
		if id, perr := uuid.Parse(in.ID); perr == nil {
			row.ID = id
		}
	}

	row.Name = in.Name
	row.ArtistID = in.ArtistID
	if !in.Date.IsZero() {
		row.Date = in.Date
	}
	if in.VenueID != nil {
		row.VenueID = in.VenueID
	}
	if in.TicketmasterID != "" {
		row.TicketmasterID = strPtr(in.TicketmasterID)
	}
	if in.TicketURL != "" {
		row.TicketURL = in.TicketURL
	}
	if in.Status != "" {
		row.Status = in.Status
	} else if row.Status == "" {
		row.Status = models.ShowStatusUpcoming
	}
	row.LastSyncedAt = &now

	conflict := conflictOn("id", showUpdateColumns...)
	if existing == nil && row.TicketmasterID != nil {
		conflict = conflictOn("ticketmaster_id", showUpdateColumns...)
	}

	if err := upsertWithFallback(ctx, s.db, s.elevated, conflict, row); err != nil {
		if isDuplicateKeyError(err) {
			if winner, ferr := s.findExisting(in); ferr == nil && winner != nil {
				return winner, nil
			}
		}
		log.Printf("show upsert failed for %s: %v", row.Name, err)
		if s.oplog != nil {
			s.oplog.RecordError("show_reconcile", err.Error())
		}
		return row, nil
	}

	// Venue-less shows stay provisional; fill the venue in the background
	// when we know where to fetch it from.
	if row.VenueID == nil && in.TicketmasterVenueID != "" {
		s.submitVenueBackfill(row.ID, in.TicketmasterVenueID)
	}

	return row, nil
}

func (s *ShowService) submitVenueBackfill(showID uuid.UUID, tmVenueID string) {
	if s.runner == nil || s.tm == nil || s.venues == nil {
		return
	}
	s.runner.Submit("venue_backfill", func(ctx context.Context) error {
		return s.BackfillVenue(ctx, showID, tmVenueID)
	})
}

// BackfillVenue fetches a show's venue from Ticketmaster, reconciles it,
// and links the show. Runs in the background.
func (s *ShowService) BackfillVenue(ctx context.Context, showID uuid.UUID, tmVenueID string) error {
	tmVenue, err := s.tm.GetVenue(ctx, tmVenueID)
	if err != nil {
		return err
	}
	venue, err := s.venues.SaveVenue(ctx, VenueInputFromTM(tmVenue))
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&models.Show{}).
		Where("id = ? AND venue_id IS NULL", showID).
		Update("venue_id", venue.ID).Error
	if isPermissionError(err) && s.elevated != nil {
		err = s.elevated.WithContext(ctx).Model(&models.Show{}).
			Where("id = ? AND venue_id IS NULL", showID).
			Update("venue_id", venue.ID).Error
	}
	return err
}
