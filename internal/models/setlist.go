package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Setlist is the voteable song list for a show. One setlist per show; the
// unique index on ShowID is the source of truth for that invariant.
type Setlist struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ShowID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"show_id"`
	SetlistFMID *string   `gorm:"column:setlistfm_id;uniqueIndex" json:"setlistfm_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Songs []SetlistSong `gorm:"foreignKey:SetlistID" json:"songs,omitempty"`
}

func (s *Setlist) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SetlistSong is one ordered entry of a setlist with its denormalized vote
// counter. The counter is only ever moved by single-statement atomic
// increments; the vote rows remain authoritative.
type SetlistSong struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	SetlistID      uuid.UUID `gorm:"type:uuid;not null;index:idx_setlist_position,unique" json:"setlist_id"`
	Title          string    `gorm:"not null" json:"title"`
	SpotifyTrackID *string   `json:"spotify_track_id,omitempty"`
	Position       int       `gorm:"not null;index:idx_setlist_position,unique" json:"position"`
	VoteCount      int       `gorm:"not null;default:0" json:"vote_count"`
	IsEncore       bool      `gorm:"not null;default:false" json:"is_encore"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *SetlistSong) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
