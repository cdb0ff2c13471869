package database

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"strings"

	"github.com/atelier/production-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapError converts a persistence error into an AppError. Constraint
// violations become client errors, connection-level failures become
// StorageUnavailable. Errors that already are AppErrors, and nil, pass
// through untouched; anything unrecognised is returned as is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		if mapped := mapPQError(pqErr); mapped != nil {
			return mapped
		}
		if isConnectionClass(string(pqErr.Code)) {
			return errors.StorageUnavailable(err)
		}
		return err
	}

	if isUnavailable(err) {
		return errors.StorageUnavailable(err)
	}

	return err
}

func mapPQError(pqErr *pq.Error) *errors.AppError {
	switch pqErr.Code {
	// Check constraint violation
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation
	case "23505":
		return errors.Conflict("a record with these values already exists")

	// Foreign key violation
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Numeric value out of range for the column's precision
	case "22003":
		return errors.Validation(map[string]string{
			"quantity": "is out of range",
		})

	// Not null violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of the workshop statuses",
		})
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})
	case strings.Contains(constraint, "shipped_at_matches_status"):
		return errors.Conflict("shipment date must be set exactly when the unit is shipped")
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// isConnectionClass covers SQLSTATE classes 08 (connection exception),
// 53 (insufficient resources) and 57P (operator intervention / shutdown).
func isConnectionClass(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || strings.HasPrefix(code, "57P")
}

func isUnavailable(err error) bool {
	if stderrors.Is(err, driver.ErrBadConn) ||
		stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	return stderrors.As(err, &netErr)
}
