package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Production events, published by production-service
	EventUnitReceived      = "production.unit.received"
	EventUnitTransitioned  = "production.unit.transitioned"
	EventUnitShipped       = "production.unit.shipped"
	EventMaterialAllocated = "production.material.allocated"

	// Intake events, consumed by production-service
	EventIntakeUnitReceived  = "intake.unit.received"
	EventIntakeBatchReceived = "intake.batch.received"
)

// Exchange names
const (
	ExchangeProductionEvents = "production.events"
	ExchangeIntakeEvents     = "intake.events"

	DeadLetterExchange = "dlx.events"
)

// MaxDeliveryAttempts is the number of dead-letter round trips after which a
// failing message stays in the DLQ.
const MaxDeliveryAttempts = 3

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Production Events

// UnitReceivedEvent is published when a unit enters the workshop
type UnitReceivedEvent struct {
	UnitID     string    `json:"unit_id"`
	OrderType  string    `json:"order_type"`
	ClientName string    `json:"client_name,omitempty"`
	Category   string    `json:"category,omitempty"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// UnitTransitionedEvent is published for every accepted status change
type UnitTransitionedEvent struct {
	UnitID       string    `json:"unit_id"`
	StatusBefore string    `json:"status_before"`
	StatusAfter  string    `json:"status_after"`
	Origin       string    `json:"origin"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// UnitShippedEvent is published when a unit leaves the workshop
type UnitShippedEvent struct {
	UnitID     string    `json:"unit_id"`
	ClientName string    `json:"client_name,omitempty"`
	ShippedAt  time.Time `json:"shipped_at"`
}

// BatchConsumption is one batch touched by an allocation
type BatchConsumption struct {
	BatchID   string          `json:"batch_id"`
	Consumed  decimal.Decimal `json:"consumed"`
	Remaining decimal.Decimal `json:"remaining"`
}

// MaterialAllocatedEvent is published after stock was drawn for a material
type MaterialAllocatedEvent struct {
	MaterialRef string             `json:"material_ref"`
	Requested   decimal.Decimal    `json:"requested"`
	Batches     []BatchConsumption `json:"batches"`
}

// Intake Events

// IntakeUnitEvent announces a garment registered by the intake desk
type IntakeUnitEvent struct {
	ExternalID string          `json:"external_id"`
	OrderType  string          `json:"order_type"`
	ClientName string          `json:"client_name,omitempty"`
	ProductRef string          `json:"product_ref"`
	Category   string          `json:"category,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit,omitempty"`
	Workflow   string          `json:"workflow,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// IntakeBatchEvent announces a material delivery
type IntakeBatchEvent struct {
	ExternalID  string          `json:"external_id"`
	MaterialRef string          `json:"material_ref"`
	SellsyRef   string          `json:"sellsy_ref,omitempty"`
	Category    string          `json:"category,omitempty"`
	Width       string          `json:"width,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
