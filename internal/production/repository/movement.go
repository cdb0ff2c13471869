package repository

import (
	"context"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MovementRepository appends and reads movement records. Records are
// never updated or deleted.
type MovementRepository struct {
	db database.Queryer
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db database.Queryer) *MovementRepository {
	return &MovementRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *MovementRepository) WithTx(tx *sqlx.Tx) *MovementRepository {
	return &MovementRepository{db: tx}
}

// Create appends a record
func (r *MovementRepository) Create(ctx context.Context, m *domain.MovementRecord) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO movement_records (
			id, movement_type, unit_id, client_name, product_ref, status_before, status_after,
			quantity, unit, note, origin
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.Type, m.UnitID, m.ClientName, m.ProductRef, m.StatusBefore, m.StatusAfter,
		m.Quantity, m.Unit, m.Note, m.Origin,
	).Scan(&m.CreatedAt)
	return database.MapError(err)
}

// ListByUnit returns a unit's history, newest first.
func (r *MovementRepository) ListByUnit(ctx context.Context, unitID string) ([]*domain.MovementRecord, error) {
	query := `
		SELECT id, movement_type, unit_id, client_name, product_ref, status_before, status_after,
		       quantity, unit, note, origin, created_at
		FROM movement_records
		WHERE unit_id = $1
		ORDER BY seq DESC
	`

	records := []*domain.MovementRecord{}
	if err := sqlx.SelectContext(ctx, r.db, &records, query, unitID); err != nil {
		return nil, database.MapError(err)
	}
	return records, nil
}
