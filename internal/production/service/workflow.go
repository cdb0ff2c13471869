package service

import (
	"context"
	"strings"
	"time"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/events"
	"github.com/atelier/production-backend/internal/production/repository"
	"github.com/atelier/production-backend/pkg/database"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// WorkflowService drives production units through their stages. Every
// status write is paired with its movement record in one transaction.
type WorkflowService struct {
	db           *database.DB
	unitRepo     *repository.UnitRepository
	movementRepo *repository.MovementRepository
	recorder     *MovementRecorder
	publisher    *events.ProductionEventPublisher
	logger       *logger.Logger
	now          func() time.Time
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(
	db *database.DB,
	unitRepo *repository.UnitRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.ProductionEventPublisher,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		db:           db,
		unitRepo:     unitRepo,
		movementRepo: movementRepo,
		recorder:     NewMovementRecorder(movementRepo),
		publisher:    publisher,
		logger:       log.WithComponent("workflow"),
		now:          time.Now,
	}
}

// WithClock replaces the clock used for reception and shipment dates.
func (s *WorkflowService) WithClock(now func() time.Time) *WorkflowService {
	s.now = now
	return s
}

// CreateUnit registers a unit at TO_DO and records its reception.
func (s *WorkflowService) CreateUnit(ctx context.Context, unit *domain.ProductionUnit, origin domain.Origin, note string) error {
	if err := s.normalizeUnit(unit); err != nil {
		return err
	}

	var record *domain.MovementRecord
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.unitRepo.WithTx(tx).Create(ctx, unit); err != nil {
			return err
		}
		var err error
		record, err = s.recorder.Record(ctx, tx, unit, nil, unit.Status, origin, note)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("unit_id", unit.ID).
		Str("client", unit.ClientName).
		Str("origin", string(origin)).
		Str("movement_id", record.ID).
		Msg("production unit received")

	s.publisher.PublishUnitReceived(ctx, unit)
	return nil
}

func (s *WorkflowService) normalizeUnit(unit *domain.ProductionUnit) error {
	unit.ClientName = strings.TrimSpace(unit.ClientName)
	unit.ProductRef = strings.TrimSpace(unit.ProductRef)
	unit.Category = strings.TrimSpace(unit.Category)

	details := map[string]string{}
	if unit.ProductRef == "" {
		details["product_ref"] = "is required"
	}

	workflow, ok := domain.ParseWorkflow(string(unit.Workflow))
	if !ok {
		details["workflow"] = "must be one of STANDARD NO_ASSEMBLY"
	}
	unit.Workflow = workflow

	switch unit.OrderType {
	case "":
		unit.OrderType = domain.OrderTypeClient
	case domain.OrderTypeClient, domain.OrderTypeStock:
	default:
		details["order_type"] = "must be one of CLIENT STOCK"
	}

	if unit.Quantity.IsZero() {
		unit.Quantity = decimal.NewFromInt(1)
	}
	if unit.Quantity.IsNegative() {
		details["quantity"] = "must be greater than 0"
	} else if !domain.FitsScale(unit.Quantity) {
		details["quantity"] = scaleMessage
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}

	if unit.Unit == "" {
		unit.Unit = "piece"
	}
	if unit.ReceivedAt.IsZero() {
		unit.ReceivedAt = s.now().UTC()
	}
	unit.Status = domain.StatusToDo
	unit.LegacyLabel = nil
	unit.ShippedAt = nil
	return nil
}

// GetUnit gets a unit by ID
func (s *WorkflowService) GetUnit(ctx context.Context, id string) (*domain.ProductionUnit, error) {
	return s.unitRepo.GetByID(ctx, id)
}

// ListUnits lists units matching filter, oldest reception first
func (s *WorkflowService) ListUnits(ctx context.Context, filter domain.UnitFilter) ([]*domain.ProductionUnit, error) {
	return s.unitRepo.List(ctx, filter)
}

// ListMovements returns a unit's history, newest first.
func (s *WorkflowService) ListMovements(ctx context.Context, unitID string) ([]*domain.MovementRecord, error) {
	if _, err := s.unitRepo.GetByID(ctx, unitID); err != nil {
		return nil, err
	}
	return s.movementRepo.ListByUnit(ctx, unitID)
}

// Transition moves one unit to target, which must be the immediate
// successor of its current status in its workflow.
func (s *WorkflowService) Transition(ctx context.Context, unitID string, target domain.Status, origin domain.Origin, note string) (*domain.ProductionUnit, error) {
	log := s.logger.WithOperation("transition")

	var (
		unit   *domain.ProductionUnit
		record *domain.MovementRecord
	)
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		unit, err = s.unitRepo.WithTx(tx).GetForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(unit.Workflow, unit.Status, target); err != nil {
			return err
		}
		record, err = s.apply(ctx, tx, unit, target, origin, note)
		return err
	})
	if err != nil {
		log.Warn().Err(err).
			Str("unit_id", unitID).
			Str("target", string(target)).
			Str("code", errors.CodeOf(err)).
			Msg("transition refused")
		return nil, err
	}

	log.Info().
		Str("unit_id", unitID).
		Str("from", string(*record.StatusBefore)).
		Str("to", string(record.StatusAfter)).
		Msg("unit transitioned")

	s.publisher.PublishTransition(ctx, record)
	return unit, nil
}

// StartStage moves every listed unit currently at from to to. Units at any
// other status are skipped; units whose workflow does not lead from from
// to to, and unknown ids, are reported as failed. Only a storage failure
// aborts the whole request.
func (s *WorkflowService) StartStage(ctx context.Context, unitIDs []string, from, to domain.Status) (*domain.StageResult, error) {
	return s.startStage(ctx, "start_stage", unitIDs, from, to)
}

// ShipUnits moves the listed units from TO_SHIP to SHIPPED, stamping their
// shipment date and recording EXPEDITION movements.
func (s *WorkflowService) ShipUnits(ctx context.Context, unitIDs []string) (*domain.StageResult, error) {
	return s.startStage(ctx, "ship_units", unitIDs, domain.StatusToShip, domain.StatusShipped)
}

func (s *WorkflowService) startStage(ctx context.Context, operation string, unitIDs []string, from, to domain.Status) (*domain.StageResult, error) {
	details := map[string]string{}
	if !from.Valid() {
		details["from_status"] = "must be a workshop status"
	}
	if !to.Valid() {
		details["to_status"] = "must be a workshop status"
	}
	ids := dedupe(unitIDs)
	if len(ids) == 0 {
		details["unit_ids"] = "must contain at least one id"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	log := s.logger.WithOperation(operation)

	var (
		result  *domain.StageResult
		records []*domain.MovementRecord
	)
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		result = &domain.StageResult{
			Transitioned: []string{},
			Skipped:      []string{},
			Failed:       []domain.ItemFailure{},
		}
		records = records[:0]

		units, err := s.unitRepo.WithTx(tx).ListForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]*domain.ProductionUnit, len(units))
		for _, u := range units {
			byID[u.ID] = u
		}

		for _, id := range ids {
			unit, ok := byID[id]
			if !ok {
				result.Failed = append(result.Failed, domain.ItemFailure{
					UnitID: id, Code: "NOT_FOUND", Reason: "production unit not found",
				})
				continue
			}
			if unit.Status != from {
				result.Skipped = append(result.Skipped, id)
				continue
			}
			if err := domain.ValidateTransition(unit.Workflow, from, to); err != nil {
				result.Failed = append(result.Failed, domain.ItemFailure{
					UnitID: id, Code: errors.CodeOf(err), Reason: err.Error(),
				})
				continue
			}

			record, err := s.apply(ctx, tx, unit, to, domain.OriginBulk, "")
			if err != nil {
				return err
			}
			records = append(records, record)
			result.Transitioned = append(result.Transitioned, id)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("requested", len(ids)).Msg("bulk transition aborted")
		return nil, err
	}

	log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Int("transitioned", len(result.Transitioned)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("bulk transition applied")

	for _, record := range records {
		s.publisher.PublishTransition(ctx, record)
	}
	return result, nil
}

// apply writes the status change and its movement. The caller holds the row lock.
func (s *WorkflowService) apply(
	ctx context.Context,
	tx *sqlx.Tx,
	unit *domain.ProductionUnit,
	to domain.Status,
	origin domain.Origin,
	note string,
) (*domain.MovementRecord, error) {
	from := unit.Status

	var shippedAt *time.Time
	if to == domain.StatusShipped {
		t := s.now().UTC()
		shippedAt = &t
	}

	if err := s.unitRepo.WithTx(tx).UpdateStatus(ctx, unit.ID, from, to, shippedAt); err != nil {
		return nil, err
	}
	unit.Status = to
	unit.ShippedAt = shippedAt

	return s.recorder.Record(ctx, tx, unit, &from, to, origin, note)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
