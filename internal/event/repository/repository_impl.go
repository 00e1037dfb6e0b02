package repository

import (
	"context"
	"time"

	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	pkgdb "github.com/smallbiznis/beacon/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() eventdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *eventdomain.Event) error {
	// Receipt time is stamped here, never taken from the client.
	event.ReceivedAt = time.Now().UTC()

	err := db.WithContext(ctx).Exec(
		`INSERT INTO events (
			id, event_id, org_id, app_id, schema_version,
			occurred_at, received_at,
			service_name, service_version, service_language, service_language_version,
			user_id, session_id,
			os, os_version, arch, ci, shell,
			event_type, event_category, payload,
			sdk_version, transmitted_at, batch_size, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.EventID,
		event.OrgID,
		event.AppID,
		event.SchemaVersion,
		event.OccurredAt,
		event.ReceivedAt,
		event.ServiceName,
		event.ServiceVersion,
		event.ServiceLanguage,
		event.ServiceLanguageVersion,
		event.UserID,
		event.SessionID,
		event.OS,
		event.OSVersion,
		event.Arch,
		event.CI,
		event.Shell,
		event.EventType,
		event.EventCategory,
		event.Payload,
		event.SDKVersion,
		event.TransmittedAt,
		event.BatchSize,
		event.RetryCount,
	).Error
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return eventdomain.ErrDuplicate
		}
		return err
	}
	return nil
}
