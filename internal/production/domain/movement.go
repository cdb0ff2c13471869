package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType classifies a history entry.
type MovementType string

const (
	MovementReception    MovementType = "RECEPTION"
	MovementStatusChange MovementType = "STATUS_CHANGE"
	MovementExpedition   MovementType = "EXPEDITION"
)

// Origin tags which entry point triggered a movement.
type Origin string

const (
	OriginAPI    Origin = "api"
	OriginBulk   Origin = "bulk"
	OriginIntake Origin = "intake"
)

// MovementRecord is an immutable audit entry, one per accepted transition.
type MovementRecord struct {
	ID           string          `db:"id" json:"id"`
	Type         MovementType    `db:"movement_type" json:"movement_type"`
	UnitID       string          `db:"unit_id" json:"unit_id"`
	ClientName   string          `db:"client_name" json:"client_name"`
	ProductRef   string          `db:"product_ref" json:"product_ref"`
	StatusBefore *Status         `db:"status_before" json:"status_before,omitempty"`
	StatusAfter  Status          `db:"status_after" json:"status_after"`
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
	Unit         string          `db:"unit" json:"unit"`
	Note         *string         `db:"note" json:"note,omitempty"`
	Origin       Origin          `db:"origin" json:"origin"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// MovementTypeFor picks the record type for a status change landing on to.
func MovementTypeFor(to Status) MovementType {
	if to == StatusShipped {
		return MovementExpedition
	}
	return MovementStatusChange
}

// StageResult reports a bulk transition item by item.
type StageResult struct {
	Transitioned []string      `json:"transitioned"`
	Skipped      []string      `json:"skipped"`
	Failed       []ItemFailure `json:"failed"`
}

// ItemFailure is one unit rejected by a bulk request.
type ItemFailure struct {
	UnitID string `json:"unit_id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
