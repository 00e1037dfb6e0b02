package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cred *Credential) error
	// FindByToken returns the active credential carrying token, or nil when
	// no such credential exists. Inactive credentials are never returned.
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*Credential, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
