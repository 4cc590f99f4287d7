package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SyncStatusPending    = "pending"
	SyncStatusInProgress = "in_progress"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

const (
	EntityTypeArtist  = "artist"
	EntityTypeShow    = "show"
	EntityTypeVenue   = "venue"
	EntityTypeSetlist = "setlist"
)

// SyncTask is one orchestration run. The row is created in pending state
// before any work starts so concurrent duplicate requests can observe it.
type SyncTask struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	EntityType string     `gorm:"not null;index" json:"entity_type"`
	EntityID   string     `gorm:"not null;index" json:"entity_id"`
	Status     string     `gorm:"not null;default:'pending'" json:"status"`
	Result     string     `gorm:"type:text" json:"result,omitempty"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (t *SyncTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// SyncState throttles repeated syncs of the same entity. One row per
// (entity_type, entity_id).
type SyncState struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	EntityType     string     `gorm:"not null;index:idx_sync_entity,unique" json:"entity_type"`
	EntityID       string     `gorm:"not null;index:idx_sync_entity,unique" json:"entity_id"`
	Status         string     `gorm:"not null;default:'pending'" json:"status"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *SyncState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Eligible reports whether the entity may be synced again.
func (s *SyncState) Eligible(now time.Time) bool {
	return s.NextEligibleAt == nil || !now.Before(*s.NextEligibleAt)
}

// ErrorLog records unexpected failures surfaced by HTTP handlers and
// background jobs.
type ErrorLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Endpoint  string    `gorm:"not null;index" json:"endpoint"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *ErrorLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
