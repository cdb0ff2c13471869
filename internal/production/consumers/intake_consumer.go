package consumers

import (
	"context"
	"strings"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/atelier/production-backend/pkg/messaging"
)

// IntakeQueue is the queue this service reads intake events from.
const IntakeQueue = "production-service.intake"

// UnitReceiver registers units arriving from intake.
type UnitReceiver interface {
	CreateUnit(ctx context.Context, unit *domain.ProductionUnit, origin domain.Origin, note string) error
}

// BatchReceiver registers material batches arriving from intake.
type BatchReceiver interface {
	ReceiveBatch(ctx context.Context, batch *domain.MaterialBatch) error
}

// IntakeConsumer applies intake events: new production units and new material batches.
type IntakeConsumer struct {
	consumer *messaging.Consumer
	units    UnitReceiver
	batches  BatchReceiver
	dedup    Deduplicator
	logger   *logger.Logger
}

// NewIntakeConsumer creates the consumer and binds its queue to the intake exchange.
// dedup may be nil, in which case every delivery is applied.
func NewIntakeConsumer(
	rmq *messaging.RabbitMQ,
	units UnitReceiver,
	batches BatchReceiver,
	dedup Deduplicator,
	log *logger.Logger,
) (*IntakeConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, IntakeQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeIntakeEvents, "intake.#"); err != nil {
		return nil, err
	}

	c := newIntakeConsumer(units, batches, dedup, log)
	c.consumer = consumer

	consumer.RegisterHandler(messaging.EventIntakeUnitReceived, c.handleUnitReceived)
	consumer.RegisterHandler(messaging.EventIntakeBatchReceived, c.handleBatchReceived)

	return c, nil
}

func newIntakeConsumer(units UnitReceiver, batches BatchReceiver, dedup Deduplicator, log *logger.Logger) *IntakeConsumer {
	return &IntakeConsumer{
		units:   units,
		batches: batches,
		dedup:   dedup,
		logger:  log.WithComponent("intake_consumer"),
	}
}

// Start starts consuming messages
func (c *IntakeConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *IntakeConsumer) handleUnitReceived(ctx context.Context, event *messaging.Event) error {
	var data messaging.IntakeUnitEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("event_id", event.ID).
		Str("external_id", data.ExternalID).
		Str("client", data.ClientName).
		Msg("received intake unit event")

	unit := &domain.ProductionUnit{
		ClientName: data.ClientName,
		ProductRef: data.ProductRef,
		Category:   data.Category,
		Quantity:   data.Quantity,
		Unit:       data.Unit,
		Workflow:   domain.Workflow(strings.ToUpper(data.Workflow)),
		OrderType:  domain.OrderType(strings.ToUpper(data.OrderType)),
	}
	if data.Notes != "" {
		notes := data.Notes
		unit.Notes = &notes
	}

	note := ""
	if data.ExternalID != "" {
		note = "intake " + data.ExternalID
	}

	return c.applyOnce(ctx, event, func(ctx context.Context) error {
		return c.units.CreateUnit(ctx, unit, domain.OriginIntake, note)
	})
}

func (c *IntakeConsumer) handleBatchReceived(ctx context.Context, event *messaging.Event) error {
	var data messaging.IntakeBatchEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("event_id", event.ID).
		Str("external_id", data.ExternalID).
		Str("material_ref", data.MaterialRef).
		Str("quantity", data.Quantity.String()).
		Msg("received intake batch event")

	batch := &domain.MaterialBatch{
		MaterialRef: data.MaterialRef,
		Category:    data.Category,
		Quantity:    data.Quantity,
		Unit:        data.Unit,
	}
	if data.SellsyRef != "" {
		ref := data.SellsyRef
		batch.SellsyRef = &ref
	}
	if data.Width != "" {
		width := data.Width
		batch.Width = &width
	}

	return c.applyOnce(ctx, event, func(ctx context.Context) error {
		return c.batches.ReceiveBatch(ctx, batch)
	})
}

// applyOnce runs apply unless the event was already claimed. A Redis outage
// does not block intake: the event is applied unclaimed. Rejected payloads
// are acknowledged since a redelivery cannot fix them; any other failure
// releases the claim and is returned for redelivery.
func (c *IntakeConsumer) applyOnce(ctx context.Context, event *messaging.Event, apply func(context.Context) error) error {
	claimed := false
	if c.dedup != nil {
		fresh, err := c.dedup.Claim(ctx, event.ID)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("event_id", event.ID).Msg("dedup unavailable, applying event unchecked")
		case !fresh:
			c.logger.Info().Str("event_id", event.ID).Msg("duplicate intake event ignored")
			return nil
		default:
			claimed = true
		}
	}

	err := apply(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, errors.ErrValidation) || errors.Is(err, errors.ErrBadRequest) {
		c.logger.Warn().Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("intake event rejected")
		return nil
	}

	if claimed {
		if relErr := c.dedup.Release(ctx, event.ID); relErr != nil {
			c.logger.Error().Err(relErr).Str("event_id", event.ID).Msg("failed to release dedup claim")
		}
	}
	return err
}
