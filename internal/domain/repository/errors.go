package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrConflict is returned when a write violates a uniqueness or exclusion constraint
	ErrConflict = errors.New("conflicting record exists")
	// ErrStaleState is returned when a guarded update matched no row
	ErrStaleState = errors.New("record is not in the expected state")
)

// PostgreSQL SQLSTATE codes
const (
	pgUniqueViolation      = "23505"
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// IsConstraintConflict reports whether err is a unique or exclusion violation
func IsConstraintConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation || pgErr.Code == pgExclusionViolation
	}
	return false
}

// IsTransient reports whether retrying the whole unit of work may succeed
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return true
		}
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
