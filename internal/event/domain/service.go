package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// Batch size bounds, inclusive.
const (
	MinBatchSize = 1
	MaxBatchSize = 1000
)

// Scope is the authenticated (organization, application) pair a batch is
// accepted under. It is derived from the verified credential and passed
// through the pipeline explicitly.
type Scope struct {
	CredentialID snowflake.ID
	OrgID        snowflake.ID
	AppID        snowflake.ID
}

// Batch is the decoded ingest request body.
type Batch struct {
	Events []IncomingEvent `json:"events"`
}

// IncomingEvent is one client-submitted event. EventID doubles as the
// idempotency key for retries.
type IncomingEvent struct {
	SchemaVersion string      `json:"schema_version"`
	EventID       uuid.UUID   `json:"event_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Service       ServiceInfo `json:"service"`
	UserID        string      `json:"user_id"`
	SessionID     *string     `json:"session_id,omitempty"`
	Environment   Environment `json:"environment"`
	Event         EventData   `json:"event"`
	Metadata      Metadata    `json:"metadata"`

	// Optional embedded scope. When present it must match the authenticated
	// credential's scope or the event is rejected on its own.
	OrgID string `json:"org_id,omitempty"`
	AppID string `json:"app_id,omitempty"`
}

type ServiceInfo struct {
	Name            string  `json:"name"`
	Version         string  `json:"version"`
	Language        string  `json:"language"`
	LanguageVersion *string `json:"language_version,omitempty"`
}

type Environment struct {
	OS        string  `json:"os"`
	OSVersion *string `json:"os_version,omitempty"`
	Arch      *string `json:"arch,omitempty"`
	CI        *bool   `json:"ci,omitempty"`
	Shell     *string `json:"shell,omitempty"`
}

// EventData carries the event type and its schema-version-dependent payload.
// Data is opaque to the pipeline beyond being valid JSON.
type EventData struct {
	Type     string          `json:"type"`
	Category *string         `json:"category,omitempty"`
	Data     json.RawMessage `json:"data"`
}

type Metadata struct {
	SDKVersion    string     `json:"sdk_version"`
	TransmittedAt *time.Time `json:"transmission_timestamp,omitempty"`
	BatchSize     int        `json:"batch_size"`
	RetryCount    int        `json:"retry_count"`
}

// Outcome classifies one event's fate within a batch.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Stable per-event reason codes. Clients decide retry-versus-drop on these
// without parsing prose.
const (
	ReasonInvalidSchema     = "invalid_schema"
	ReasonUnsupportedSchema = "unsupported_schema"
	ReasonScopeMismatch     = "scope_mismatch"
	ReasonDuplicate         = "duplicate"
	ReasonStorageError      = "storage_error"
	ReasonCancelled         = "cancelled"
)

// Result is the outcome for a single event, attributable by its id.
type Result struct {
	EventID uuid.UUID `json:"event_id"`
	Outcome Outcome   `json:"-"`
	Code    string    `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Report aggregates per-event outcomes for one batch. Results carry no
// ordering guarantee relative to the submitted batch.
type Report struct {
	Accepted int
	Rejected int
	Results  []Result
}

// Failures returns the non-accepted results.
func (r *Report) Failures() []Result {
	out := make([]Result, 0, r.Rejected)
	for _, res := range r.Results {
		if res.Outcome != OutcomeAccepted {
			out = append(out, res)
		}
	}
	return out
}

type Service interface {
	// Ingest validates the batch shape, then validates and persists each
	// event independently. Sibling events never affect each other's outcome.
	Ingest(ctx context.Context, scope Scope, batch Batch) (*Report, error)
}

var (
	ErrDuplicate          = errors.New("duplicate_event")
	ErrBatchSize          = errors.New("invalid_batch_size")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)
