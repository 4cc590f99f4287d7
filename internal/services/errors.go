package services

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNotFound is returned by adapters and services when the upstream or the
// store has no matching record.
var ErrNotFound = errors.New("not found")

// isPermissionError reports whether a store write failed because the current
// role lacks privileges. These get one retry on the elevated credential.
func isPermissionError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case "42501", // insufficient_privilege
			"28000", // invalid_authorization_specification
			"28P01": // invalid_password
			return true
		}
	}
	return false
}

// isDuplicateKeyError reports whether a write hit a unique constraint.
// Concurrent creates race on these; callers requery instead of failing.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
		return true
	}
	// sqlite (tests) has no SQLSTATE surface through gorm
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
