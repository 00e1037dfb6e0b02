package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier classifies a credential for rate limiting. It is informational to the
// ingestion path itself.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// Credential stores the token/secret pair authorizing ingestion for one
// (organization, application) pair. The secret never leaves the server; it is
// only used to recompute request signatures.
type Credential struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrgID      snowflake.ID `gorm:"column:org_id;not null;uniqueIndex:ux_credentials_org_app,priority:1"`
	AppID      snowflake.ID `gorm:"column:app_id;not null;uniqueIndex:ux_credentials_org_app,priority:2"`
	Token      string       `gorm:"type:text;not null;uniqueIndex:ux_credentials_token"`
	Secret     string       `gorm:"type:text;not null"`
	Tier       Tier         `gorm:"type:text;not null;default:free"`
	IsActive   bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at"`
}

// TableName sets the database table name.
func (Credential) TableName() string { return "credentials" }
