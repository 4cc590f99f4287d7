package services

import (
	"log"
	"time"

	"github.com/theset/backend/internal/models"
	"gorm.io/gorm"
)

// OpLogService records operational failures in the error_logs table so
// swallowed errors stay visible. Recording must itself never fail the
// surrounding flow.
type OpLogService struct {
	db *gorm.DB
}

func NewOpLogService(db *gorm.DB) *OpLogService {
	return &OpLogService{db: db}
}

// RecordError writes an error_logs row. Failures to write are only logged.
func (s *OpLogService) RecordError(endpoint, message string) {
	entry := &models.ErrorLog{
		Endpoint: endpoint,
		Message:  message,
	}
	if err := s.db.Create(entry).Error; err != nil {
		log.Printf("failed to record error log for %s: %v", endpoint, err)
	}
}

// RecentErrors retrieves error_logs rows newer than since, newest first.
func (s *OpLogService) RecentErrors(since time.Time, limit int) ([]*models.ErrorLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []*models.ErrorLog
	err := s.db.Where("created_at > ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
