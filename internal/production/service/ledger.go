package service

import (
	"context"
	"sort"
	"strings"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/events"
	"github.com/atelier/production-backend/internal/production/repository"
	"github.com/atelier/production-backend/pkg/database"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const scaleMessage = "must have at most 3 decimal places"

// LedgerService handles material stock: intake, grouped views and allocation
type LedgerService struct {
	db        *database.DB
	batchRepo *repository.BatchRepository
	publisher *events.ProductionEventPublisher
	logger    *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	publisher *events.ProductionEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:        db,
		batchRepo: batchRepo,
		publisher: publisher,
		logger:    log.WithComponent("ledger"),
	}
}

// FilterAvailable keeps the batches that still hold stock.
func FilterAvailable(batches []*domain.MaterialBatch) []*domain.MaterialBatch {
	out := make([]*domain.MaterialBatch, 0, len(batches))
	for _, b := range batches {
		if b.Available() {
			out = append(out, b)
		}
	}
	return out
}

// GroupByMaterial groups batches by material reference. Groups are sorted by
// reference, batches inside a group by descending quantity then id. Batches
// without a reference are left out. Stock views and allocation both go
// through this function.
func GroupByMaterial(batches []*domain.MaterialBatch) []*domain.MaterialGroup {
	index := make(map[string]*domain.MaterialGroup)
	for _, b := range batches {
		ref := strings.TrimSpace(b.MaterialRef)
		if ref == "" {
			continue
		}
		group, ok := index[ref]
		if !ok {
			group = &domain.MaterialGroup{MaterialRef: ref, Total: decimal.Zero}
			index[ref] = group
		}
		group.Batches = append(group.Batches, b)
		group.Total = group.Total.Add(b.Quantity)
	}

	groups := make([]*domain.MaterialGroup, 0, len(index))
	for _, group := range index {
		sort.SliceStable(group.Batches, func(i, j int) bool {
			a, b := group.Batches[i], group.Batches[j]
			if !a.Quantity.Equal(b.Quantity) {
				return a.Quantity.GreaterThan(b.Quantity)
			}
			return a.ID < b.ID
		})
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].MaterialRef < groups[j].MaterialRef
	})
	return groups
}

// PlanAllocation draws requested from group largest batch first. It fails
// with InsufficientStock, and plans nothing, when the group cannot cover the
// request. group may be nil when every batch is exhausted. requested must be
// positive.
func PlanAllocation(materialRef string, group *domain.MaterialGroup, requested decimal.Decimal) ([]domain.Consumption, error) {
	if !requested.IsPositive() {
		return nil, errors.Validation(map[string]string{"quantity": "must be greater than 0"})
	}

	available := decimal.Zero
	if group != nil {
		available = group.Total
	}
	if available.LessThan(requested) {
		return nil, errors.InsufficientStock(materialRef, requested.String(), available.String())
	}

	plan := make([]domain.Consumption, 0, 1)
	remaining := requested
	for _, batch := range group.Batches {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(batch.Quantity, remaining)
		if !take.IsPositive() {
			continue
		}
		plan = append(plan, domain.Consumption{
			BatchID:   batch.ID,
			Consumed:  take,
			Remaining: batch.Quantity.Sub(take),
		})
		remaining = remaining.Sub(take)
	}
	return plan, nil
}

// ListMaterialStock returns available stock grouped by material, optionally
// narrowed to one material or one category.
func (s *LedgerService) ListMaterialStock(ctx context.Context, filter domain.StockFilter) ([]*domain.MaterialGroup, error) {
	filter.MaterialRef = strings.TrimSpace(filter.MaterialRef)
	filter.Category = strings.TrimSpace(filter.Category)

	batches, err := s.batchRepo.ListAvailable(ctx, filter)
	if err != nil {
		return nil, err
	}
	return GroupByMaterial(FilterAvailable(batches)), nil
}

// AllocateMaterial consumes quantity of a material, largest batch first.
// Either every planned decrement is committed or none is.
func (s *LedgerService) AllocateMaterial(ctx context.Context, materialRef string, quantity decimal.Decimal) (*domain.Allocation, error) {
	materialRef = strings.TrimSpace(materialRef)
	if materialRef == "" {
		return nil, errors.Validation(map[string]string{"material_ref": "is required"})
	}
	if !quantity.IsPositive() {
		return nil, errors.Validation(map[string]string{"quantity": "must be greater than 0"})
	}
	if !domain.FitsScale(quantity) {
		return nil, errors.Validation(map[string]string{"quantity": scaleMessage})
	}

	log := s.logger.WithOperation("allocate_material")

	var alloc *domain.Allocation
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		repo := s.batchRepo.WithTx(tx)

		batches, err := repo.ListByMaterialForUpdate(ctx, materialRef)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			return errors.NotFound("material " + materialRef)
		}

		var group *domain.MaterialGroup
		if groups := GroupByMaterial(FilterAvailable(batches)); len(groups) > 0 {
			group = groups[0]
		}

		plan, err := PlanAllocation(materialRef, group, quantity)
		if err != nil {
			return err
		}

		for i := range plan {
			remaining, err := repo.Decrement(ctx, plan[i].BatchID, plan[i].Consumed)
			if err != nil {
				return err
			}
			plan[i].Remaining = remaining
		}

		alloc = &domain.Allocation{
			MaterialRef: materialRef,
			Requested:   quantity,
			Consumed:    plan,
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).
			Str("material_ref", materialRef).
			Str("requested", quantity.String()).
			Str("code", errors.CodeOf(err)).
			Msg("allocation refused")
		return nil, err
	}

	log.Info().
		Str("material_ref", materialRef).
		Str("requested", quantity.String()).
		Int("batches", len(alloc.Consumed)).
		Msg("material allocated")

	s.publisher.PublishMaterialAllocated(ctx, alloc)
	return alloc, nil
}

// ReceiveBatch registers a delivered roll or lot.
func (s *LedgerService) ReceiveBatch(ctx context.Context, batch *domain.MaterialBatch) error {
	if err := normalizeBatch(batch); err != nil {
		return err
	}

	if err := s.batchRepo.Create(ctx, batch); err != nil {
		return err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("material_ref", batch.MaterialRef).
		Str("quantity", batch.Quantity.String()).
		Msg("material batch received")
	return nil
}

func normalizeBatch(batch *domain.MaterialBatch) error {
	batch.MaterialRef = strings.TrimSpace(batch.MaterialRef)
	batch.Category = strings.TrimSpace(batch.Category)
	if batch.Quantity.IsNegative() {
		return errors.Validation(map[string]string{"quantity": "must not be negative"})
	}
	if !domain.FitsScale(batch.Quantity) {
		return errors.Validation(map[string]string{"quantity": scaleMessage})
	}
	if batch.Unit == "" {
		batch.Unit = "m"
	}
	return nil
}
