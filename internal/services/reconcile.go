package services

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertWithFallback performs an ON CONFLICT upsert on the primary handle
// and retries exactly once on the elevated handle when the primary role is
// denied the write. Any other failure is returned as-is; callers decide
// whether to swallow it.
func upsertWithFallback(ctx context.Context, db, elevated *gorm.DB, conflict clause.OnConflict, value interface{}) error {
	err := db.WithContext(ctx).Clauses(conflict).Create(value).Error
	if err == nil {
		return nil
	}
	if isPermissionError(err) && elevated != nil {
		return elevated.WithContext(ctx).Clauses(conflict).Create(value).Error
	}
	return err
}

// conflictOn builds the upsert clause for a natural-key column, updating
// the given columns on conflict.
func conflictOn(column string, updates ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoUpdates: clause.AssignmentColumns(updates),
	}
}

// strPtr returns a pointer for non-empty strings, nil otherwise. Vendor
// payloads leave external ids absent more often than not; nullable columns
// keep the unique indexes honest.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
