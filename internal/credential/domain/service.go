package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Lookup resolves an active credential by its bearer token.
	Lookup(ctx context.Context, token string) (*Credential, error)
	// RecordUse refreshes the credential's last-used timestamp. It is
	// best-effort: it never blocks the caller and failures are only logged.
	RecordUse(id snowflake.ID, at time.Time)
}

var (
	ErrNotFound     = errors.New("not_found")
	ErrInvalidToken = errors.New("invalid_token")
)
