package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Venue struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name           string     `gorm:"not null" json:"name"`
	City           string     `json:"city,omitempty"`
	State          string     `json:"state,omitempty"`
	Country        string     `json:"country,omitempty"`
	Address        string     `json:"address,omitempty"`
	PostalCode     string     `json:"postal_code,omitempty"`
	TicketmasterID *string    `gorm:"uniqueIndex" json:"ticketmaster_id,omitempty"`
	Latitude       float64    `json:"latitude,omitempty"`
	Longitude      float64    `json:"longitude,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Relations
	Shows []Show `gorm:"foreignKey:VenueID" json:"shows,omitempty"`
}

func (v *Venue) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// SyncedWithin reports whether the venue row was refreshed inside the window.
func (v *Venue) SyncedWithin(window time.Duration) bool {
	return v.LastSyncedAt != nil && time.Since(*v.LastSyncedAt) < window
}
