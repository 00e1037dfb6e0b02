package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert persists a single event atomically. It returns ErrDuplicate when
	// a row with the same event_id already exists; concurrent inserts of the
	// same id resolve to exactly one stored row via the unique constraint.
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
}
