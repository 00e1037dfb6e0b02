package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	"github.com/smallbiznis/beacon/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// persistConcurrency bounds the per-batch fan-out against the store. Events
// within a batch are independent, so only the store's uniqueness constraint
// orders them.
const persistConcurrency = 8

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    eventdomain.Repository
	CredSvc credentialdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    eventdomain.Repository
	credsvc credentialdomain.Service
	metrics *metrics.Metrics
}

func New(p ServiceParam) eventdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("event.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		credsvc: p.CredSvc,
		metrics: p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, scope eventdomain.Scope, batch eventdomain.Batch) (*eventdomain.Report, error) {
	n := len(batch.Events)
	if n < eventdomain.MinBatchSize || n > eventdomain.MaxBatchSize {
		return nil, eventdomain.ErrBatchSize
	}

	results := make([]eventdomain.Result, n)

	var accepted, duplicates, storageErrs, attempted atomic.Int64

	var g errgroup.Group
	g.SetLimit(persistConcurrency)

	for i := range batch.Events {
		g.Go(func() error {
			ev := batch.Events[i]

			if code, msg := validateEvent(ev, scope); code != "" {
				results[i] = eventdomain.Result{
					EventID: ev.EventID,
					Outcome: eventdomain.OutcomeRejected,
					Code:    code,
					Message: msg,
				}
				return nil
			}

			// Stop issuing writes once the request is gone. Events already
			// persisted stay persisted; retries are idempotent by event id.
			if ctx.Err() != nil {
				results[i] = eventdomain.Result{
					EventID: ev.EventID,
					Outcome: eventdomain.OutcomeRejected,
					Code:    eventdomain.ReasonCancelled,
					Message: "request cancelled before this event was persisted",
				}
				return nil
			}

			attempted.Add(1)

			err := s.repo.Insert(ctx, s.db, s.toModel(scope, ev))
			switch {
			case errors.Is(err, eventdomain.ErrDuplicate):
				duplicates.Add(1)
				results[i] = eventdomain.Result{
					EventID: ev.EventID,
					Outcome: eventdomain.OutcomeDuplicate,
					Code:    eventdomain.ReasonDuplicate,
					Message: fmt.Sprintf("event already ingested (duplicate event_id: %s)", ev.EventID),
				}
			case err != nil:
				storageErrs.Add(1)
				s.log.Error("persist event failed",
					zap.String("event_id", ev.EventID.String()),
					zap.Error(err),
				)
				results[i] = eventdomain.Result{
					EventID: ev.EventID,
					Outcome: eventdomain.OutcomeRejected,
					Code:    eventdomain.ReasonStorageError,
					Message: "failed to persist event",
				}
			default:
				accepted.Add(1)
				results[i] = eventdomain.Result{
					EventID: ev.EventID,
					Outcome: eventdomain.OutcomeAccepted,
				}
			}
			return nil
		})
	}

	_ = g.Wait()

	// Every persistence attempt failing on storage means the store itself is
	// down: fail the whole request instead of reporting a sea of rejections.
	if att := attempted.Load(); att > 0 && storageErrs.Load() == att {
		return nil, eventdomain.ErrStorageUnavailable
	}

	report := &eventdomain.Report{
		Accepted: int(accepted.Load()),
		Rejected: n - int(accepted.Load()),
		Results:  results,
	}

	if s.metrics != nil {
		s.metrics.RecordIngest(report)
	}

	if report.Accepted > 0 {
		s.credsvc.RecordUse(scope.CredentialID, time.Now())
	}

	return report, nil
}

// validateEvent checks one event's required fields and scope. Failures are
// local to the event and carry a stable reason code.
func validateEvent(ev eventdomain.IncomingEvent, scope eventdomain.Scope) (string, string) {
	if ev.EventID == uuid.Nil {
		return eventdomain.ReasonInvalidSchema, "missing required field: event_id"
	}
	if ev.Timestamp.IsZero() {
		return eventdomain.ReasonInvalidSchema, "missing required field: timestamp"
	}
	if ev.SchemaVersion == "" {
		return eventdomain.ReasonInvalidSchema, "missing required field: schema_version"
	}
	if !supportedSchema(ev.SchemaVersion) {
		return eventdomain.ReasonUnsupportedSchema, fmt.Sprintf("unsupported schema version: %s", ev.SchemaVersion)
	}
	if ev.Service.Name == "" {
		return eventdomain.ReasonInvalidSchema, "missing required field: service.name"
	}
	if ev.Service.Version == "" {
		return eventdomain.ReasonInvalidSchema, "missing required field: service.version"
	}
	if !strings.HasPrefix(ev.UserID, "client_") {
		return eventdomain.ReasonInvalidSchema, "user id must start with 'client_'"
	}
	if ev.Event.Type == "" {
		return eventdomain.ReasonInvalidSchema, "missing required field: event.type"
	}
	if ev.OrgID != "" && ev.OrgID != scope.OrgID.String() {
		return eventdomain.ReasonScopeMismatch, "event org_id does not match the authenticated credential"
	}
	if ev.AppID != "" && ev.AppID != scope.AppID.String() {
		return eventdomain.ReasonScopeMismatch, "event app_id does not match the authenticated credential"
	}
	return "", ""
}

// supportedSchema currently accepts only 1.x.x payload schemas.
func supportedSchema(version string) bool {
	return strings.HasPrefix(version, "1.")
}

func (s *Service) toModel(scope eventdomain.Scope, ev eventdomain.IncomingEvent) *eventdomain.Event {
	payload := ev.Event.Data
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var osField *string
	if ev.Environment.OS != "" {
		os := ev.Environment.OS
		osField = &os
	}

	return &eventdomain.Event{
		ID:            s.genID.Generate(),
		EventID:       ev.EventID,
		OrgID:         scope.OrgID,
		AppID:         scope.AppID,
		SchemaVersion: ev.SchemaVersion,
		OccurredAt:    ev.Timestamp.UTC(),

		ServiceName:            ev.Service.Name,
		ServiceVersion:         ev.Service.Version,
		ServiceLanguage:        ev.Service.Language,
		ServiceLanguageVersion: ev.Service.LanguageVersion,

		UserID:    ev.UserID,
		SessionID: ev.SessionID,

		OS:        osField,
		OSVersion: ev.Environment.OSVersion,
		Arch:      ev.Environment.Arch,
		CI:        ev.Environment.CI,
		Shell:     ev.Environment.Shell,

		EventType:     ev.Event.Type,
		EventCategory: ev.Event.Category,
		Payload:       []byte(payload),

		SDKVersion:    ev.Metadata.SDKVersion,
		TransmittedAt: ev.Metadata.TransmittedAt,
		BatchSize:     ev.Metadata.BatchSize,
		RetryCount:    ev.Metadata.RetryCount,
	}
}
