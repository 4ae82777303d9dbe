package repository

import (
	"context"

	"gorm.io/gorm"
)

// Transactor runs fn as one unit of work. fn's error (or panic) rolls back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}
