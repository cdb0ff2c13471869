package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/pkg/database"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const batchColumns = `id, material_ref, sellsy_ref, category, width, quantity, unit, created_at, updated_at`

// BatchRepository handles material batch persistence
type BatchRepository struct {
	db database.Queryer
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db database.Queryer) *BatchRepository {
	return &BatchRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *BatchRepository) WithTx(tx *sqlx.Tx) *BatchRepository {
	return &BatchRepository{db: tx}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *domain.MaterialBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO material_batches (id, material_ref, sellsy_ref, category, width, quantity, unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.MaterialRef, batch.SellsyRef, batch.Category, batch.Width,
		batch.Quantity, batch.Unit,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	return database.MapError(err)
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.MaterialBatch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("material batch")
	}

	var batch domain.MaterialBatch
	query := `SELECT ` + batchColumns + ` FROM material_batches WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("material batch")
		}
		return nil, database.MapError(err)
	}
	return &batch, nil
}

// ListAvailable returns batches with stock left, optionally narrowed to one
// material or one category. Batches without a material reference are never
// returned. References compare with surrounding blanks stripped.
func (r *BatchRepository) ListAvailable(ctx context.Context, filter domain.StockFilter) ([]*domain.MaterialBatch, error) {
	conditions := []string{"quantity > 0", "btrim(material_ref) <> ''"}
	var args []interface{}
	if filter.MaterialRef != "" {
		args = append(args, filter.MaterialRef)
		conditions = append(conditions, fmt.Sprintf("btrim(material_ref) = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	query := `SELECT ` + batchColumns + ` FROM material_batches WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY material_ref, quantity DESC, id`

	batches := []*domain.MaterialBatch{}
	if err := sqlx.SelectContext(ctx, r.db, &batches, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return batches, nil
}

// ListByMaterialForUpdate locks every batch of a material, exhausted ones
// included. Stored references are matched with surrounding blanks stripped,
// the same way stock views group them.
func (r *BatchRepository) ListByMaterialForUpdate(ctx context.Context, materialRef string) ([]*domain.MaterialBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM material_batches WHERE btrim(material_ref) = $1 ORDER BY id FOR UPDATE`

	batches := []*domain.MaterialBatch{}
	if err := sqlx.SelectContext(ctx, r.db, &batches, query, materialRef); err != nil {
		return nil, database.MapError(err)
	}
	return batches, nil
}

// Decrement removes amount from a batch and returns what is left. The
// write is refused when the batch holds less than amount.
func (r *BatchRepository) Decrement(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE material_batches
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity
	`

	var remaining decimal.Decimal
	if err := r.db.QueryRowxContext(ctx, query, id, amount).Scan(&remaining); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, errors.Conflict("batch quantity changed concurrently")
		}
		return decimal.Zero, database.MapError(err)
	}
	return remaining, nil
}
