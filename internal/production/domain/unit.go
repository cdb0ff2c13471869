package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType tells a customer order from workshop stock production.
type OrderType string

const (
	OrderTypeClient OrderType = "CLIENT"
	OrderTypeStock  OrderType = "STOCK"
)

// ProductionUnit is one trackable item on the workshop floor.
type ProductionUnit struct {
	ID          string          `db:"id" json:"id"`
	ClientName  string          `db:"client_name" json:"client_name"`
	ProductRef  string          `db:"product_ref" json:"product_ref"`
	Category    string          `db:"category" json:"category"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Unit        string          `db:"unit" json:"unit"`
	Status      Status          `db:"status" json:"status"`
	LegacyLabel *string         `db:"legacy_label" json:"legacy_label,omitempty"`
	Workflow    Workflow        `db:"workflow" json:"workflow"`
	OrderType   OrderType       `db:"order_type" json:"order_type"`
	Notes       *string         `db:"notes" json:"notes,omitempty"`
	ReceivedAt  time.Time       `db:"received_at" json:"received_at"`
	ShippedAt   *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// DisplayStatus is the label shown to operators; legacy units keep their old text.
func (u *ProductionUnit) DisplayStatus() string {
	if u.Status == StatusLegacy && u.LegacyLabel != nil && *u.LegacyLabel != "" {
		return *u.LegacyLabel
	}
	return string(u.Status)
}

// UnitFilter narrows listUnits. Zero values mean "any".
type UnitFilter struct {
	Client         string
	Status         Status
	Category       string
	ExcludeShipped bool
}
