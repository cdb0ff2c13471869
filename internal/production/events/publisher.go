package events

import (
	"context"
	"time"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/atelier/production-backend/pkg/messaging"
)

// Source is the event source stamped on everything this service publishes.
const Source = "production-service"

// ProductionEventPublisher publishes production events after commit.
// Publishing is best-effort: failures are logged, never returned.
// A nil *ProductionEventPublisher is valid and publishes nothing.
type ProductionEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewProductionEventPublisher declares the production exchange and returns a publisher on it
func NewProductionEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*ProductionEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeProductionEvents, Source, log)
	if err != nil {
		return nil, err
	}

	return New(publisher, log), nil
}

// New wraps an existing publisher
func New(publisher messaging.EventPublisher, log *logger.Logger) *ProductionEventPublisher {
	return &ProductionEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// PublishUnitReceived publishes a unit received event
func (p *ProductionEventPublisher) PublishUnitReceived(ctx context.Context, unit *domain.ProductionUnit) {
	if p == nil {
		return
	}

	data := messaging.UnitReceivedEvent{
		UnitID:     unit.ID,
		OrderType:  string(unit.OrderType),
		ClientName: unit.ClientName,
		Category:   unit.Category,
		Status:     string(unit.Status),
		ReceivedAt: unit.ReceivedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventUnitReceived, data); err != nil {
		p.logger.Error().Err(err).Str("unit_id", unit.ID).Msg("failed to publish unit received event")
	}
}

// PublishTransition publishes the transitioned event for a movement, plus
// the shipped event when the unit left the workshop.
func (p *ProductionEventPublisher) PublishTransition(ctx context.Context, m *domain.MovementRecord) {
	if p == nil {
		return
	}

	before := ""
	if m.StatusBefore != nil {
		before = string(*m.StatusBefore)
	}

	data := messaging.UnitTransitionedEvent{
		UnitID:       m.UnitID,
		StatusBefore: before,
		StatusAfter:  string(m.StatusAfter),
		Origin:       string(m.Origin),
		OccurredAt:   m.CreatedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventUnitTransitioned, data); err != nil {
		p.logger.Error().Err(err).Str("unit_id", m.UnitID).Msg("failed to publish unit transitioned event")
	}

	if m.StatusAfter != domain.StatusShipped {
		return
	}

	shippedAt := m.CreatedAt
	if shippedAt.IsZero() {
		shippedAt = time.Now().UTC()
	}
	shipped := messaging.UnitShippedEvent{
		UnitID:     m.UnitID,
		ClientName: m.ClientName,
		ShippedAt:  shippedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventUnitShipped, shipped); err != nil {
		p.logger.Error().Err(err).Str("unit_id", m.UnitID).Msg("failed to publish unit shipped event")
	}
}

// PublishMaterialAllocated publishes a material allocated event
func (p *ProductionEventPublisher) PublishMaterialAllocated(ctx context.Context, alloc *domain.Allocation) {
	if p == nil {
		return
	}

	batches := make([]messaging.BatchConsumption, len(alloc.Consumed))
	for i, c := range alloc.Consumed {
		batches[i] = messaging.BatchConsumption{
			BatchID:   c.BatchID,
			Consumed:  c.Consumed,
			Remaining: c.Remaining,
		}
	}

	data := messaging.MaterialAllocatedEvent{
		MaterialRef: alloc.MaterialRef,
		Requested:   alloc.Requested,
		Batches:     batches,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMaterialAllocated, data); err != nil {
		p.logger.Error().Err(err).Str("material_ref", alloc.MaterialRef).Msg("failed to publish material allocated event")
	}
}
