package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ShowStatusUpcoming  = "upcoming"
	ShowStatusCompleted = "completed"
	ShowStatusCanceled  = "canceled"
)

type Show struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name           string     `gorm:"not null" json:"name"`
	Date           time.Time  `gorm:"index" json:"date"`
	ArtistID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"artist_id"`
	VenueID        *uuid.UUID `gorm:"type:uuid;index" json:"venue_id,omitempty"`
	TicketmasterID *string    `gorm:"uniqueIndex" json:"ticketmaster_id,omitempty"`
	TicketURL      string     `json:"ticket_url,omitempty"`
	Status         string     `gorm:"not null;default:'upcoming'" json:"status"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Relations
	Artist  *Artist  `gorm:"foreignKey:ArtistID" json:"artist,omitempty"`
	Venue   *Venue   `gorm:"foreignKey:VenueID" json:"venue,omitempty"`
	Setlist *Setlist `gorm:"foreignKey:ShowID" json:"setlist,omitempty"`
}

func (s *Show) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// DisplayReady reports whether the show references a resolved artist and
// venue. Shows missing either are provisional and excluded from public
// listings.
func (s *Show) DisplayReady() bool {
	return s.ArtistID != uuid.Nil && s.VenueID != nil && *s.VenueID != uuid.Nil
}

// SyncedWithin reports whether the show row was refreshed inside the window.
func (s *Show) SyncedWithin(window time.Duration) bool {
	return s.LastSyncedAt != nil && time.Since(*s.LastSyncedAt) < window
}

// ScopeDisplayReady narrows a shows query to rows with both references
// resolved.
func ScopeDisplayReady(db *gorm.DB) *gorm.DB {
	return db.Where("venue_id IS NOT NULL")
}
