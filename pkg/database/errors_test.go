package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/atelier/production-backend/pkg/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"status check constraint", &pq.Error{Code: "23514", Constraint: "production_units_status_valid"}, "VALIDATION_ERROR"},
		{"quantity check constraint", &pq.Error{Code: "23514", Constraint: "material_batches_quantity_non_negative"}, "VALIDATION_ERROR"},
		{"shipment date constraint", &pq.Error{Code: "23514", Constraint: "production_units_shipped_at_matches_status"}, "CONFLICT"},
		{"unique violation", &pq.Error{Code: "23505"}, "CONFLICT"},
		{"foreign key violation", &pq.Error{Code: "23503"}, "BAD_REQUEST"},
		{"numeric overflow", &pq.Error{Code: "22003"}, "VALIDATION_ERROR"},
		{"connection failure", &pq.Error{Code: "08006"}, "STORAGE_UNAVAILABLE"},
		{"admin shutdown", &pq.Error{Code: "57P01"}, "STORAGE_UNAVAILABLE"},
		{"bad connection", fmt.Errorf("query: %w", driver.ErrBadConn), "STORAGE_UNAVAILABLE"},
		{"deadline", context.DeadlineExceeded, "STORAGE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(MapError(tt.err)))
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	assert.Nil(t, MapError(nil))

	notFound := apperrors.NotFound("unit")
	assert.Same(t, notFound, MapError(notFound))

	plain := fmt.Errorf("syntax error")
	assert.Equal(t, plain, MapError(plain))
}

func TestStorageUnavailable_IsSentinel(t *testing.T) {
	err := MapError(driver.ErrBadConn)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageUnavailable))
}
