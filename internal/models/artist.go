package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoredTrack is one entry of an artist's cached track catalog.
type StoredTrack struct {
	SpotifyID  string `json:"spotify_id"`
	Name       string `json:"name"`
	Album      string `json:"album,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
	Popularity int    `json:"popularity,omitempty"`
}

type Artist struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	Name           string        `gorm:"not null;index" json:"name"`
	SpotifyID      *string       `gorm:"uniqueIndex" json:"spotify_id,omitempty"`
	TicketmasterID *string       `gorm:"uniqueIndex" json:"ticketmaster_id,omitempty"`
	MBID           *string       `gorm:"column:mbid;uniqueIndex" json:"mbid,omitempty"`
	Popularity     int           `json:"popularity"`
	Followers      int           `json:"followers"`
	Genres         []string      `gorm:"serializer:json" json:"genres,omitempty"`
	ImageURL       string        `json:"image_url,omitempty"`
	StoredTracks   []StoredTrack `gorm:"serializer:json" json:"stored_tracks,omitempty"`
	TracksSyncedAt *time.Time    `json:"tracks_synced_at,omitempty"`
	LastSyncedAt   *time.Time    `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Relations
	Shows []Show `gorm:"foreignKey:ArtistID" json:"shows,omitempty"`
}

func (a *Artist) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// SyncedWithin reports whether the artist row was refreshed inside the
// freshness window. Never-synced rows are always stale.
func (a *Artist) SyncedWithin(window time.Duration) bool {
	return a.LastSyncedAt != nil && time.Since(*a.LastSyncedAt) < window
}

// TracksSyncedWithin is SyncedWithin for the cached track catalog.
func (a *Artist) TracksSyncedWithin(window time.Duration) bool {
	return a.TracksSyncedAt != nil && time.Since(*a.TracksSyncedAt) < window
}
