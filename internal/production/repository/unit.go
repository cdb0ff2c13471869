package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/pkg/database"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const unitColumns = `id, client_name, product_ref, category, quantity, unit, status, legacy_label,
	workflow, order_type, notes, received_at, shipped_at, created_at, updated_at`

// UnitRepository handles production unit persistence
type UnitRepository struct {
	db database.Queryer
}

// NewUnitRepository creates a new unit repository
func NewUnitRepository(db database.Queryer) *UnitRepository {
	return &UnitRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *UnitRepository) WithTx(tx *sqlx.Tx) *UnitRepository {
	return &UnitRepository{db: tx}
}

// Create inserts a unit. ID is generated when empty.
func (r *UnitRepository) Create(ctx context.Context, unit *domain.ProductionUnit) error {
	if unit.ID == "" {
		unit.ID = uuid.New().String()
	}

	query := `
		INSERT INTO production_units (
			id, client_name, product_ref, category, quantity, unit, status, legacy_label,
			workflow, order_type, notes, received_at, shipped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		unit.ID, unit.ClientName, unit.ProductRef, unit.Category, unit.Quantity, unit.Unit,
		unit.Status, unit.LegacyLabel, unit.Workflow, unit.OrderType, unit.Notes,
		unit.ReceivedAt, unit.ShippedAt,
	).Scan(&unit.CreatedAt, &unit.UpdatedAt)
	return database.MapError(err)
}

// GetByID gets a unit by ID
func (r *UnitRepository) GetByID(ctx context.Context, id string) (*domain.ProductionUnit, error) {
	return r.get(ctx, `SELECT `+unitColumns+` FROM production_units WHERE id = $1`, id)
}

// GetForUpdate gets a unit and locks its row until the transaction ends.
func (r *UnitRepository) GetForUpdate(ctx context.Context, id string) (*domain.ProductionUnit, error) {
	return r.get(ctx, `SELECT `+unitColumns+` FROM production_units WHERE id = $1 FOR UPDATE`, id)
}

func (r *UnitRepository) get(ctx context.Context, query, id string) (*domain.ProductionUnit, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("production unit")
	}

	var unit domain.ProductionUnit
	if err := sqlx.GetContext(ctx, r.db, &unit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production unit")
		}
		return nil, database.MapError(err)
	}
	return &unit, nil
}

// ListForUpdate locks the given units in id order. Unknown or malformed ids
// are simply absent from the result.
func (r *UnitRepository) ListForUpdate(ctx context.Context, ids []string) ([]*domain.ProductionUnit, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []*domain.ProductionUnit{}, nil
	}

	query := `SELECT ` + unitColumns + ` FROM production_units WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`

	var units []*domain.ProductionUnit
	if err := sqlx.SelectContext(ctx, r.db, &units, query, pq.Array(valid)); err != nil {
		return nil, database.MapError(err)
	}
	return units, nil
}

// List returns units matching filter, oldest reception first.
func (r *UnitRepository) List(ctx context.Context, filter domain.UnitFilter) ([]*domain.ProductionUnit, error) {
	var conditions []string
	var args []interface{}

	if filter.Client != "" {
		args = append(args, filter.Client)
		conditions = append(conditions, fmt.Sprintf("client_name = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ExcludeShipped {
		conditions = append(conditions, "status <> 'SHIPPED'")
	}

	query := `SELECT ` + unitColumns + ` FROM production_units`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY received_at, id`

	units := []*domain.ProductionUnit{}
	if err := sqlx.SelectContext(ctx, r.db, &units, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return units, nil
}

// UpdateStatus moves a unit from one status to another. The write only
// applies while the row still holds from; otherwise a Conflict is returned.
// shippedAt must be set exactly when to is SHIPPED.
func (r *UnitRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, shippedAt *time.Time) error {
	query := `
		UPDATE production_units
		SET status = $3, shipped_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to, shippedAt)
	if err != nil {
		return database.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return database.MapError(err)
	}
	if affected == 0 {
		return errors.Conflict("unit status changed concurrently")
	}

	return nil
}
