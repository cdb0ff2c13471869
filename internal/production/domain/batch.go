package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of decimal places every stored quantity keeps.
const QuantityScale = 3

// FitsScale reports whether q is stored exactly, with no digit past
// QuantityScale. Trailing zeros do not count.
func FitsScale(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(QuantityScale))
}

// MaterialBatch is one physical roll or lot of a material.
type MaterialBatch struct {
	ID          string          `db:"id" json:"id"`
	MaterialRef string          `db:"material_ref" json:"material_ref"`
	SellsyRef   *string         `db:"sellsy_ref" json:"sellsy_ref,omitempty"`
	Category    string          `db:"category" json:"category"`
	Width       *string         `db:"width" json:"width,omitempty"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Unit        string          `db:"unit" json:"unit"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Available reports whether the batch still has stock.
func (b *MaterialBatch) Available() bool {
	return b.Quantity.IsPositive()
}

// StockFilter narrows the available stock view. Empty fields match everything.
type StockFilter struct {
	MaterialRef string
	Category    string
}

// MaterialGroup is the derived view of every batch sharing a material
// reference, largest remaining quantity first.
type MaterialGroup struct {
	MaterialRef string           `json:"material_ref"`
	Total       decimal.Decimal  `json:"total"`
	Batches     []*MaterialBatch `json:"batches"`
}

// Consumption is the part of one batch drawn by an allocation.
type Consumption struct {
	BatchID   string          `json:"batch_id"`
	Consumed  decimal.Decimal `json:"consumed"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Allocation is the result of a successful allocateMaterial call.
type Allocation struct {
	MaterialRef string          `json:"material_ref"`
	Requested   decimal.Decimal `json:"requested"`
	Consumed    []Consumption   `json:"consumed"`
}
