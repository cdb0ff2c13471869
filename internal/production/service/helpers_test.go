package service

import (
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/events"
	"github.com/atelier/production-backend/internal/production/repository"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/atelier/production-backend/pkg/testutil"
	"github.com/shopspring/decimal"
)

const (
	idA = "0b7f6c1e-3a52-4d0e-9a7e-1f2c3d4e5f60"
	idB = "1c8a7d2f-4b63-4e1f-8b8f-2a3d4e5f6071"
	idC = "2d9b8e3a-5c74-4f2a-9c9a-3b4e5f607182"
)

var unitCols = []string{
	"id", "client_name", "product_ref", "category", "quantity", "unit", "status", "legacy_label",
	"workflow", "order_type", "notes", "received_at", "shipped_at", "created_at", "updated_at",
}

var batchCols = []string{"id", "material_ref", "sellsy_ref", "category", "width", "quantity", "unit", "created_at", "updated_at"}

var fixedNow = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

type stubUnit struct {
	id       string
	client   string
	status   domain.Status
	workflow domain.Workflow
}

func unitRows(units ...stubUnit) *sqlmock.Rows {
	rows := testutil.MockRows(unitCols...)
	for _, u := range units {
		workflow := u.workflow
		if workflow == "" {
			workflow = domain.WorkflowStandard
		}
		var shippedAt interface{}
		if u.status == domain.StatusShipped {
			shippedAt = fixedNow
		}
		rows.AddRow(u.id, u.client, "CANAPE-3P", "canapes", "1", "piece", string(u.status), nil,
			string(workflow), "CLIENT", nil, fixedNow, shippedAt, fixedNow, fixedNow)
	}
	return rows
}

func unitFixture(id, client, category string, status domain.Status, received time.Time) *domain.ProductionUnit {
	return &domain.ProductionUnit{
		ID:         id,
		ClientName: client,
		ProductRef: "REF-" + id[:4],
		Category:   category,
		Quantity:   decimal.NewFromInt(1),
		Unit:       "piece",
		Status:     status,
		Workflow:   domain.WorkflowStandard,
		OrderType:  domain.OrderTypeClient,
		ReceivedAt: received,
	}
}

func batchFixture(id, ref, category, qty string) *domain.MaterialBatch {
	return &domain.MaterialBatch{
		ID:          id,
		MaterialRef: ref,
		Category:    category,
		Quantity:    decimal.RequireFromString(qty),
		Unit:        "m",
	}
}

func newWorkflowService(mockDB *testutil.MockDB, pub *testutil.MockPublisher) *WorkflowService {
	log := logger.Nop()
	return NewWorkflowService(
		mockDB.Database(),
		repository.NewUnitRepository(mockDB.DB),
		repository.NewMovementRepository(mockDB.DB),
		events.New(pub, log),
		log,
	).WithClock(func() time.Time { return fixedNow })
}

func newLedgerService(mockDB *testutil.MockDB, pub *testutil.MockPublisher) *LedgerService {
	log := logger.Nop()
	return NewLedgerService(
		mockDB.Database(),
		repository.NewBatchRepository(mockDB.DB),
		events.New(pub, log),
		log,
	)
}

func expectMovementInsert(mockDB *testutil.MockDB, movementType string, unitID, before interface{}, after, origin string) {
	mockDB.ExpectQuery("INSERT INTO movement_records").
		WithArgs(testutil.AnyUUID{}, movementType, unitID, sqlmock.AnyArg(), sqlmock.AnyArg(),
			before, after, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), origin).
		WillReturnRows(testutil.MockRows("created_at").AddRow(fixedNow))
}
