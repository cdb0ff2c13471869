package service

import (
	"context"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/repository"
	"github.com/jmoiron/sqlx"
)

// MovementRecorder appends the history entry that accompanies every accepted
// status change. It always writes inside the caller's transaction.
type MovementRecorder struct {
	movementRepo *repository.MovementRepository
}

// NewMovementRecorder creates a new movement recorder
func NewMovementRecorder(movementRepo *repository.MovementRepository) *MovementRecorder {
	return &MovementRecorder{movementRepo: movementRepo}
}

// Record writes one movement for unit. A nil before marks a reception.
func (r *MovementRecorder) Record(
	ctx context.Context,
	tx *sqlx.Tx,
	unit *domain.ProductionUnit,
	before *domain.Status,
	after domain.Status,
	origin domain.Origin,
	note string,
) (*domain.MovementRecord, error) {
	record := &domain.MovementRecord{
		Type:         domain.MovementReception,
		UnitID:       unit.ID,
		ClientName:   unit.ClientName,
		ProductRef:   unit.ProductRef,
		StatusBefore: before,
		StatusAfter:  after,
		Quantity:     unit.Quantity,
		Unit:         unit.Unit,
		Origin:       origin,
	}
	if before != nil {
		record.Type = domain.MovementTypeFor(after)
	}
	if note != "" {
		record.Note = &note
	}

	if err := r.movementRepo.WithTx(tx).Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}
