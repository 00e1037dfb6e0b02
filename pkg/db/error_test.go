package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm sentinel", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm sentinel", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres message", errors.New(`ERROR: duplicate key value violates unique constraint "ux_events_event_id" (SQLSTATE 23505)`), true},
		{"sqlite message", errors.New("constraint failed: UNIQUE constraint failed: events.event_id (2067)"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateKeyErr(tt.err))
		})
	}
}
