package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is one stored telemetry occurrence. Rows are immutable once inserted;
// there is no update or delete path.
type Event struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	EventID uuid.UUID    `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_events_event_id"`
	OrgID   snowflake.ID `gorm:"column:org_id;not null;index:ix_events_org_app_occurred_at,priority:1"`
	AppID   snowflake.ID `gorm:"column:app_id;not null;index:ix_events_org_app_occurred_at,priority:2"`

	SchemaVersion string `gorm:"column:schema_version;type:text;not null"`

	// OccurredAt is the client-observed occurrence time. ReceivedAt is
	// stamped by the store at insert and never trusted from the client.
	OccurredAt time.Time `gorm:"column:occurred_at;not null;index:ix_events_org_app_occurred_at,priority:3"`
	ReceivedAt time.Time `gorm:"column:received_at;not null;default:CURRENT_TIMESTAMP"`

	ServiceName            string  `gorm:"column:service_name;type:text;not null"`
	ServiceVersion         string  `gorm:"column:service_version;type:text;not null"`
	ServiceLanguage        string  `gorm:"column:service_language;type:text;not null;default:''"`
	ServiceLanguageVersion *string `gorm:"column:service_language_version;type:text"`

	UserID    string  `gorm:"column:user_id;type:text;not null"`
	SessionID *string `gorm:"column:session_id;type:text"`

	OS        *string `gorm:"column:os;type:text"`
	OSVersion *string `gorm:"column:os_version;type:text"`
	Arch      *string `gorm:"column:arch;type:text"`
	CI        *bool   `gorm:"column:ci"`
	Shell     *string `gorm:"column:shell;type:text"`

	EventType     string         `gorm:"column:event_type;type:text;not null;index:ix_events_event_type"`
	EventCategory *string        `gorm:"column:event_category;type:text"`
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb;not null"`

	SDKVersion    string     `gorm:"column:sdk_version;type:text;not null;default:''"`
	TransmittedAt *time.Time `gorm:"column:transmitted_at"`
	BatchSize     int        `gorm:"column:batch_size;not null;default:0"`
	RetryCount    int        `gorm:"column:retry_count;not null;default:0"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "events" }
