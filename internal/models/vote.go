package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnonVoterPrefix marks voter ids derived from a client fingerprint rather
// than an authenticated subject.
const AnonVoterPrefix = "anon:"

// Vote records one user's vote for one setlist song. The unique index on
// (setlist_song_id, voter_id) is the central correctness invariant of the
// voting subsystem; application-level "already voted" checks are advisory.
type Vote struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	SetlistSongID uuid.UUID `gorm:"type:uuid;not null;index:idx_song_voter,unique" json:"setlist_song_id"`
	VoterID       string    `gorm:"not null;index:idx_song_voter,unique" json:"voter_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// IsAnonymous reports whether the vote came from an unauthenticated client.
func (v *Vote) IsAnonymous() bool {
	return strings.HasPrefix(v.VoterID, AnonVoterPrefix)
}

// AnonVoterID builds the voter id for a client fingerprint.
func AnonVoterID(fingerprint string) string {
	return AnonVoterPrefix + fingerprint
}
