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

// VenueInput is the normalized venue candidate built from vendor JSON.
type VenueInput struct {
	ID             string
	Name           string
	TicketmasterID string
	City           string
	State          string
	Country        string
	Address        string
	PostalCode     string
	Latitude       float64
	Longitude      float64
}

type VenueService struct {
	db       *gorm.DB
	elevated *gorm.DB
	cfg      *config.Config
	oplog    *OpLogService
}

func NewVenueService(db, elevated *gorm.DB, cfg *config.Config, oplog *OpLogService) *VenueService {
	return &VenueService{db: db, elevated: elevated, cfg: cfg, oplog: oplog}
}

// GetVenueByID retrieves a venue by primary id.
func (s *VenueService) GetVenueByID(venueID uuid.UUID) (*models.Venue, error) {
	var venue models.Venue
	if err := s.db.First(&venue, "id = ?", venueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &venue, nil
}

func (s *VenueService) findExisting(in VenueInput) (*models.Venue, error) {
	var venue models.Venue

	if in.ID != "" {
		if id, err := uuid.Parse(in.ID); err == nil {
			if err := s.db.First(&venue, "id = ?", id).Error; err == nil {
				return &venue, nil
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
	}
	if in.TicketmasterID != "" {
		if err := s.db.First(&venue, "ticketmaster_id = ?", in.TicketmasterID).Error; err == nil {
			return &venue, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

var venueUpdateColumns = []string{
	"name", "ticketmaster_id", "city", "state", "country", "address",
	"postal_code", "latitude", "longitude", "last_synced_at", "updated_at",
}

// SaveVenue reconciles a candidate venue: keyed by the Ticketmaster id when
// one exists, generated id otherwise. Same swallow-and-log failure policy
// as artists.
func (s *VenueService) SaveVenue(ctx context.Context, in VenueInput) (*models.Venue, error) {
	in.Name = validation.SanitizeName(in.Name)
	if !validation.ValidateEntityName(in.Name) {
		return nil, errors.New("venue name is required")
	}

	existing, err := s.findExisting(in)
	if err != nil {
		return nil, err
	}

	newExternal := in.TicketmasterID != "" && (existing == nil || existing.TicketmasterID == nil)
	if existing != nil && existing.SyncedWithin(s.cfg.VenueStaleness) && !newExternal {
		return existing, nil
	}

	now := time.Now().UTC()
	row := &models.Venue{}
	if existing != nil {
		*row = *existing
	} else if in.ID != "" {
		if id, perr := uuid.Parse(in.ID); perr == nil {
			row.ID = id
		}
	}

	row.Name = in.Name
	if in.TicketmasterID != "" {
		row.TicketmasterID = strPtr(in.TicketmasterID)
	}
	if in.City != "" {
		row.City = in.City
	}
	if in.State != "" {
		row.State = in.State
	}
	if in.Country != "" {
		row.Country = in.Country
	}
	if in.Address != "" {
		row.Address = in.Address
	}
	if in.PostalCode != "" {
		row.PostalCode = in.PostalCode
	}
	if in.Latitude != 0 {
		row.Latitude = in.Latitude
	}
	if in.Longitude != 0 {
		row.Longitude = in.Longitude
	}
	row.LastSyncedAt = &now

	conflict := conflictOn("id", venueUpdateColumns...)
	if existing == nil && row.TicketmasterID != nil {
		conflict = conflictOn("ticketmaster_id", venueUpdateColumns...)
	}

	if err := upsertWithFallback(ctx, s.db, s.elevated, conflict, row); err != nil {
		if isDuplicateKeyError(err) {
			if winner, ferr := s.findExisting(in); ferr == nil && winner != nil {
				return winner, nil
			}
		}
		log.Printf("venue upsert failed for %s: %v", row.Name, err)
		if s.oplog != nil {
			s.oplog.RecordError("venue_reconcile", err.Error())
		}
		return row, nil
	}
	return row, nil
}
