package consumers

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/atelier/production-backend/pkg/messaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUnits struct {
	err      error
	received []*domain.ProductionUnit
	origins  []domain.Origin
	notes    []string
}

func (f *fakeUnits) CreateUnit(ctx context.Context, unit *domain.ProductionUnit, origin domain.Origin, note string) error {
	f.received = append(f.received, unit)
	f.origins = append(f.origins, origin)
	f.notes = append(f.notes, note)
	return f.err
}

type fakeBatches struct {
	err      error
	received []*domain.MaterialBatch
}

func (f *fakeBatches) ReceiveBatch(ctx context.Context, batch *domain.MaterialBatch) error {
	f.received = append(f.received, batch)
	return f.err
}

type memoryDedup struct {
	mu       sync.Mutex
	claimed  map[string]bool
	err      error
	released []string
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{claimed: map[string]bool{}}
}

func (d *memoryDedup) Claim(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.claimed[id] {
		return false, nil
	}
	d.claimed[id] = true
	return true, nil
}

func (d *memoryDedup) Release(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claimed, id)
	d.released = append(d.released, id)
	return nil
}

func intakeEvent(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(eventType, "intake-desk", "", data)
	require.NoError(t, err)
	return event
}

func TestHandleUnitReceived(t *testing.T) {
	units := &fakeUnits{}
	c := newIntakeConsumer(units, &fakeBatches{}, newMemoryDedup(), logger.Nop())

	event := intakeEvent(t, messaging.EventIntakeUnitReceived, messaging.IntakeUnitEvent{
		ExternalID: "CMD-118",
		OrderType:  "stock",
		ProductRef: "FAUTEUIL-CLUB",
		Category:   "fauteuils",
		Quantity:   decimal.NewFromInt(2),
		Workflow:   "no_assembly",
		Notes:      "tissu fourni",
	})
	require.NoError(t, c.handleUnitReceived(context.Background(), event))

	require.Len(t, units.received, 1)
	unit := units.received[0]
	assert.Equal(t, "FAUTEUIL-CLUB", unit.ProductRef)
	assert.Equal(t, domain.OrderTypeStock, unit.OrderType)
	assert.Equal(t, domain.WorkflowNoAssembly, unit.Workflow)
	assert.Equal(t, "2", unit.Quantity.String())
	require.NotNil(t, unit.Notes)
	assert.Equal(t, "tissu fourni", *unit.Notes)
	assert.Equal(t, domain.OriginIntake, units.origins[0])
	assert.Equal(t, "intake CMD-118", units.notes[0])
}

func TestHandleUnitReceived_DuplicateIgnored(t *testing.T) {
	units := &fakeUnits{}
	c := newIntakeConsumer(units, &fakeBatches{}, newMemoryDedup(), logger.Nop())

	event := intakeEvent(t, messaging.EventIntakeUnitReceived, messaging.IntakeUnitEvent{ProductRef: "CANAPE-3P"})
	require.NoError(t, c.handleUnitReceived(context.Background(), event))
	require.NoError(t, c.handleUnitReceived(context.Background(), event))

	assert.Len(t, units.received, 1)
}

func TestHandleUnitReceived_RejectedPayloadIsAcked(t *testing.T) {
	units := &fakeUnits{err: errors.Validation(map[string]string{"product_ref": "is required"})}
	dedup := newMemoryDedup()
	c := newIntakeConsumer(units, &fakeBatches{}, dedup, logger.Nop())

	err := c.handleUnitReceived(context.Background(),
		intakeEvent(t, messaging.EventIntakeUnitReceived, messaging.IntakeUnitEvent{}))
	assert.NoError(t, err)
	assert.Empty(t, dedup.released)
}

func TestHandleBatchReceived(t *testing.T) {
	batches := &fakeBatches{}
	c := newIntakeConsumer(&fakeUnits{}, batches, nil, logger.Nop())

	event := intakeEvent(t, messaging.EventIntakeBatchReceived, messaging.IntakeBatchEvent{
		ExternalID:  "BL-7",
		MaterialRef: "SON-4410",
		SellsyRef:   "SY-22",
		Category:    "velours",
		Width:       "140",
		Quantity:    decimal.RequireFromString("35.5"),
		Unit:        "m",
	})
	require.NoError(t, c.handleBatchReceived(context.Background(), event))

	require.Len(t, batches.received, 1)
	batch := batches.received[0]
	assert.Equal(t, "SON-4410", batch.MaterialRef)
	assert.Equal(t, "35.5", batch.Quantity.String())
	require.NotNil(t, batch.SellsyRef)
	assert.Equal(t, "SY-22", *batch.SellsyRef)
	require.NotNil(t, batch.Width)
	assert.Equal(t, "140", *batch.Width)
}

func TestHandleBatchReceived_StorageFailureReleasesClaim(t *testing.T) {
	batches := &fakeBatches{err: errors.StorageUnavailable(stderrors.New("connection refused"))}
	dedup := newMemoryDedup()
	c := newIntakeConsumer(&fakeUnits{}, batches, dedup, logger.Nop())

	event := intakeEvent(t, messaging.EventIntakeBatchReceived, messaging.IntakeBatchEvent{MaterialRef: "SON-1"})
	err := c.handleBatchReceived(context.Background(), event)
	assert.True(t, errors.Is(err, errors.ErrStorageUnavailable))
	assert.Equal(t, []string{event.ID}, dedup.released)

	// The redelivery is applied again.
	batches.err = nil
	require.NoError(t, c.handleBatchReceived(context.Background(), event))
	assert.Len(t, batches.received, 2)
}

func TestHandleBatchReceived_DedupOutageStillApplies(t *testing.T) {
	batches := &fakeBatches{}
	dedup := newMemoryDedup()
	dedup.err = stderrors.New("redis: connection refused")
	c := newIntakeConsumer(&fakeUnits{}, batches, dedup, logger.Nop())

	event := intakeEvent(t, messaging.EventIntakeBatchReceived, messaging.IntakeBatchEvent{MaterialRef: "SON-1"})
	require.NoError(t, c.handleBatchReceived(context.Background(), event))
	assert.Len(t, batches.received, 1)
}
